package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSyncCmd(opts *options) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rewrite the managed cron block for a day",
		Long: `Fetch the day's meetings, compute trigger times and patch them into the
schedule below the delimiter. The previous table is saved to
cron_backup_path first.

Exit codes:
  0  synced (or disabled)
  2  configuration error
  3  malformed calendar data
  4  schedule store error (the backup path is printed)
  5  calendar source error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := resolveDay(s.app, day)
			if err != nil {
				return err
			}
			rep, err := s.app.Sync(cmd.Context(), d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rep.Disabled {
				fmt.Fprintf(out, "%s sync disabled in config; nothing changed\n", color.YellowString("!"))
				return nil
			}
			state := color.New(color.FgBlue).Sprint("unchanged")
			if rep.Result.Changed {
				state = color.New(color.FgGreen).Sprint("updated")
			}
			fmt.Fprintf(out, "%s %s: %s from %s (%s)\n",
				color.GreenString("✓"), d, plural(len(rep.Entries), "trigger"), plural(rep.Meetings, "meeting"), state)
			if rep.Result.Bootstrap {
				fmt.Fprintf(out, "  delimiter was missing and has been appended\n")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to sync (YYYY-MM-DD, default today in the configured timezone)")
	return cmd
}
