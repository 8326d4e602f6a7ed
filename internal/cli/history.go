package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autodesk/internal/storage"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.app.History(cmd.Context(), limit)
			if errors.Is(err, storage.ErrDisabled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Run history is disabled (set storage.driver to file or sqlite)")
				return nil
			}
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			displayRuns(cmd.OutOrStdout(), runs, s.update.Settings.Location)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func displayRuns(out io.Writer, runs []storage.Run, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tDAY\tSTATUS\tMEETINGS\tTRIGGERS\tTOOK\tDETAIL")
	for _, r := range runs {
		detail := r.Error
		if r.BackupPath != "" {
			detail += " (backup: " + r.BackupPath + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.At.In(loc).Format("2006-01-02 15:04:05"), r.Day, statusLabel(r.Status),
			r.Meetings, r.Triggers, (time.Duration(r.TookMS) * time.Millisecond).String(), detail)
	}
	_ = w.Flush()
}

func statusLabel(status string) string {
	switch status {
	case storage.StatusOK:
		return color.New(color.FgGreen).Sprint(status)
	case storage.StatusUnchanged:
		return color.New(color.FgBlue).Sprint(status)
	case storage.StatusFailed:
		return color.New(color.FgRed).Sprint(status)
	default:
		return color.New(color.FgYellow).Sprint(status)
	}
}
