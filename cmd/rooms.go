package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect the room table",
	}
	cmd.AddCommand(newRoomsListCmd())
	cmd.AddCommand(newRoomsResolveCmd())
	cmd.AddCommand(newRoomsCheckCmd())
	return cmd
}

func newRoomsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms, prefixes and offset rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			r, err := e.resolver()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PREFIX\tNAME\tSEATS\tRULES")
			for _, rm := range r.Table().Rooms() {
				var rules []string
				for _, rule := range rm.Rules {
					hi := "∞"
					if rule.Max > 0 {
						hi = fmt.Sprint(rule.Max)
					}
					rules = append(rules, fmt.Sprintf("[%d,%s]%+d", rule.Min, hi, rule.Offset))
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rm.Prefix, rm.Name, rm.Seats, strings.Join(rules, " "))
			}
			return tw.Flush()
		},
	}
}

func newRoomsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve CODE...",
		Short: "Print the slot id for each seat code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			r, err := e.resolver()
			if err != nil {
				return err
			}
			var failed int
			for _, code := range args {
				slot, err := r.Resolve(code)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", code, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", code, slot)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d codes invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newRoomsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report seats whose codes map to the same slot id",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			r, err := e.resolver()
			if err != nil {
				return err
			}
			cs := r.Table().Collisions()
			for _, c := range cs {
				fmt.Fprintf(cmd.OutOrStdout(), "slot %d: %s\n", c.Slot, strings.Join(c.Seats, ", "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d colliding slot ids\n", len(cs))
			return nil
		},
	}
}
