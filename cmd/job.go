package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/libseat/internal/jobs"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/secret"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled reservations (non-UI)",
	}
	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobEventsCmd())
	cmd.AddCommand(newJobCancelCmd())
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var (
		userID     int64
		name       string
		account    string
		password   string
		room       string
		seatNo     int
		day        string
		start, end string
		runAt      string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Schedule a reservation to run at a given local time",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if err := e.cfg.RequireCredKey(); err != nil {
				return err
			}
			box, err := secret.New(e.cfg.CredEncKey)
			if err != nil {
				return err
			}
			r, err := e.resolver()
			if err != nil {
				return err
			}

			d, err := reservation.ParseDay(day)
			if err != nil {
				return err
			}
			at := time.Now()
			if runAt != "" {
				at, err = time.ParseInLocation("2006-01-02 15:04", runAt, e.cfg.Location)
				if err != nil {
					return fmt.Errorf("invalid --run-at (want YYYY-MM-DD HH:MM)")
				}
			}
			if password == "" {
				password = os.Getenv("LIBRARY_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or $LIBRARY_PASSWORD required")
			}
			sealed, err := box.Seal(password, account)
			if err != nil {
				return err
			}

			j := jobs.Job{
				UserID:         userID,
				Name:           name,
				Account:        account,
				PasswordSealed: sealed,
				Room:           room,
				Seat:           seatNo,
				Day:            d,
				Start:          start,
				End:            end,
				RunAt:          at,
			}
			if j.Name == "" {
				j.Name = fmt.Sprintf("%s%d %s", room, seatNo, d)
			}
			if err := j.Validate(r); err != nil {
				return err
			}

			ctx := context.Background()
			dbh, err := e.openDB(ctx, true)
			if err != nil {
				return err
			}
			defer dbh.Close()

			id, err := jobs.NewRepo(dbh).Create(ctx, j)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job %d, runs at %s\n", id, at.In(e.cfg.Location).Format("2006-01-02 15:04"))
			return nil
		},
	}

	f := c.Flags()
	f.Int64Var(&userID, "user-id", 0, "owner user id")
	f.StringVar(&name, "name", "", "job name")
	f.StringVar(&account, "account", "", "library account")
	f.StringVar(&password, "password", "", "library password (default $LIBRARY_PASSWORD)")
	f.StringVar(&room, "room", "", "room name or prefix")
	f.IntVar(&seatNo, "seat", 0, "seat number")
	f.StringVar(&day, "day", "tomorrow", "today or tomorrow, relative to the run time")
	f.StringVar(&start, "start", "", "start time HH:MM")
	f.StringVar(&end, "end", "", "end time HH:MM")
	f.StringVar(&runAt, "run-at", "", "local run time YYYY-MM-DD HH:MM (default now)")
	for _, req := range []string{"user-id", "account", "room", "seat", "start", "end"} {
		_ = c.MarkFlagRequired(req)
	}
	return c
}

func newJobListCmd() *cobra.Command {
	var userID int64
	var limit int

	c := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			dbh, err := e.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer dbh.Close()

			repo := jobs.NewRepo(dbh)
			var js []jobs.Job
			if userID > 0 {
				js, err = repo.ListByUser(ctx, userID)
			} else {
				js, err = repo.List(ctx, limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tNAME\tSEAT\tDAY\tTIME\tRUN AT\tSTATUS\tSLOT\tERROR")
			for _, j := range js {
				slot := "-"
				if j.SlotID != nil {
					slot = fmt.Sprint(*j.SlotID)
				}
				lastErr := ""
				if j.LastError != nil {
					lastErr = *j.LastError
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s%d\t%s\t%s-%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.UserID, j.Name, j.Room, j.Seat, j.Day, j.Start, j.End,
					j.RunAt.In(e.cfg.Location).Format("2006-01-02 15:04"), j.Status, slot, lastErr)
			}
			return tw.Flush()
		},
	}
	c.Flags().Int64Var(&userID, "user-id", 0, "only jobs owned by this user")
	c.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	return c
}

func newJobEventsCmd() *cobra.Command {
	var id int64

	c := &cobra.Command{
		Use:   "events",
		Short: "Print the event log of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			dbh, err := e.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer dbh.Close()

			evs, err := jobs.NewRepo(dbh).ListEvents(ctx, id)
			if err != nil {
				return err
			}
			for _, ev := range evs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s - %s - %s\n",
					ev.At.In(e.cfg.Location).Format("2006-01-02 15:04:05"), ev.Level, strings.TrimSpace(ev.Message))
			}
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "job id")
	_ = c.MarkFlagRequired("id")
	return c
}

func newJobCancelCmd() *cobra.Command {
	var id, userID int64

	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending job",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			dbh, err := e.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer dbh.Close()

			if err := jobs.NewRepo(dbh).Cancel(ctx, id, userID); err != nil {
				return fmt.Errorf("cancel job %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "canceled job %d\n", id)
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "job id")
	c.Flags().Int64Var(&userID, "user-id", 0, "owner user id")
	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("user-id")
	return c
}
