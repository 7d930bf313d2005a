package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/libseat/internal/notify"
	"github.com/example/libseat/internal/reservation"
)

func newReserveCmd() *cobra.Command {
	var (
		account, password string
		room, code        string
		seatNo            int
		day               string
		start, end        string
		advance           string
		at                string
		maxAttempts       int
		verbose           bool
	)

	c := &cobra.Command{
		Use:   "reserve",
		Short: "Log in and reserve one seat, retrying until the library accepts",
		Example: `  libseat reserve --account 2021001 --room ngg3e --seat 90 --start 08:00 --end 22:00
  libseat reserve --account 2021001 --code nbk12 --day today --start 14:00 --end 18:00 --at 06:59`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()

			if password == "" {
				password = os.Getenv("LIBRARY_PASSWORD")
			}
			d, err := reservation.ParseDay(day)
			if err != nil {
				return err
			}
			adv, ok := reservation.ParseAdvance(advance)
			if !ok {
				return fmt.Errorf("invalid --advance %q (want neighbour or walk)", advance)
			}
			order := reservation.Order{
				Credentials: reservation.Credentials{Account: account, Password: password},
				Room:        room,
				Seat:        seatNo,
				Code:        code,
				Day:         d,
				Start:       start,
				End:         end,
			}
			if err := order.Validate(); err != nil {
				return err
			}

			r, err := e.resolver()
			if err != nil {
				return err
			}
			t, err := e.newTransport()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if at != "" {
				wake, err := nextClock(time.Now().In(e.cfg.Location), at)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "waiting until %s\n", wake.Format("2006-01-02 15:04:05"))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Until(wake)):
				}
			}

			level := reservation.LevelInfo
			if verbose {
				level = reservation.LevelDebug
			}
			notifiers := []reservation.Notifier{notify.Writer(cmd.OutOrStdout(), level), notify.Logger(e.log)}
			outcomes, closePub, err := e.publisher()
			if err != nil {
				e.log.Warn("outcome publishing disabled", zap.Error(err))
			} else {
				defer closePub()
				if outcomes != nil {
					notifiers = append(notifiers, outcomes(0))
				}
			}

			p := e.policy()
			p.Advance = adv
			if maxAttempts > 0 {
				p.MaxAttempts = maxAttempts
			}
			sess := reservation.NewSession(t, r,
				reservation.WithPolicy(p),
				reservation.WithLocation(e.cfg.Location),
				reservation.WithLogger(e.log),
				reservation.WithNotifier(reservation.Multi(notifiers...)),
			)

			out, err := sess.Reserve(ctx, order)
			if err != nil {
				var re *reservation.Error
				if errors.As(err, &re) && re.Kind == reservation.KindCanceled {
					return fmt.Errorf("reservation canceled after %d attempts", out.Attempts)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reserved slot %d on %s, %s-%s\n",
				out.SlotID, out.Request.Date.Format("2006-01-02"), out.Request.Start, out.Request.End)
			return nil
		},
	}

	f := c.Flags()
	f.StringVar(&account, "account", "", "library account (student id)")
	f.StringVar(&password, "password", "", "library password (default $LIBRARY_PASSWORD)")
	f.StringVar(&room, "room", "", "room name or prefix, e.g. ngg3e")
	f.IntVar(&seatNo, "seat", 0, "seat number inside --room")
	f.StringVar(&code, "code", "", "seat code such as ngg3e90 (instead of --room/--seat)")
	f.StringVar(&day, "day", "tomorrow", "today or tomorrow")
	f.StringVar(&start, "start", "", "start time HH:MM")
	f.StringVar(&end, "end", "", "end time HH:MM")
	f.StringVar(&advance, "advance", "neighbour", "seat choice after a conflict: neighbour or walk")
	f.StringVar(&at, "at", "", "wait until this local time (HH:MM or HH:MM:SS) before starting")
	f.IntVar(&maxAttempts, "max-attempts", 0, "submission limit (default $RESERVE_MAX_ATTEMPTS)")
	f.BoolVarP(&verbose, "verbose", "v", false, "print debug events, including raw responses")
	_ = c.MarkFlagRequired("account")
	_ = c.MarkFlagRequired("start")
	_ = c.MarkFlagRequired("end")
	c.MarkFlagsMutuallyExclusive("room", "code")
	c.MarkFlagsRequiredTogether("room", "seat")
	return c
}

// nextClock returns the next instant at or after now whose wall clock in
// now's location reads clock.
func nextClock(now time.Time, clock string) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	layout := "15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q (want HH:MM or HH:MM:SS)", clock)
	}
	y, m, d := now.Date()
	wake := time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	if wake.Before(now) {
		wake = wake.AddDate(0, 0, 1)
	}
	return wake, nil
}
