package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, u, err := opts.load()
			if err != nil {
				return err
			}
			s := u.Settings
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s is valid\n", color.GreenString("✓"), m.Path())
			fmt.Fprintf(out, "  timezone:   %s\n", s.Location)
			fmt.Fprintf(out, "  calendar:   %s (%s)\n", s.CalendarID, s.Calendar.Source)
			fmt.Fprintf(out, "  store:      %s\n", s.Cron.Store)
			fmt.Fprintf(out, "  threshold:  %s, offset %s, max standing %s\n",
				s.Policy.EndThreshold, s.Policy.TriggerOffset, s.Policy.MaxStandingTime)
			ignore := make([]string, 0, len(s.Policy.IgnoreTimes))
			for _, t := range s.Policy.IgnoreTimes {
				ignore = append(ignore, t.String())
			}
			fmt.Fprintf(out, "  ignore:     [%s]\n", strings.Join(ignore, ", "))
			if !s.Enabled {
				fmt.Fprintf(out, "%s enabled is false: sync and serve will not write\n", color.YellowString("!"))
			}
			return nil
		},
	}
}
