package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autodesk/internal/app"
	"autodesk/internal/trigger"
)

func newPreviewCmd(opts *options) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the triggers a sync would write, without writing",
		Args:  cobra.NoArgs,
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
			rep, err := s.app.Preview(cmd.Context(), d)
			if err != nil {
				return err
			}
			displayPreview(cmd.OutOrStdout(), rep, s.update.Settings.Delimiter)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to preview (YYYY-MM-DD, default today in the configured timezone)")
	return cmd
}

func displayPreview(out io.Writer, rep app.Report, delimiter string) {
	fmt.Fprintf(out, "Day %s: %s\n\n", rep.Day, plural(rep.Meetings, "meeting"))
	if rep.Disabled {
		fmt.Fprintf(out, "%s sync is disabled in config; sync would not write this\n\n", color.YellowString("!"))
	}

	if len(rep.Decisions) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "START\tEND\tMEETING\tRESULT\tTRIGGER")
		for _, d := range rep.Decisions {
			at := "-"
			if d.Reason == trigger.Triggered {
				at = d.At.Format("15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.Meeting.Start.Format("15:04"), d.Meeting.End.Format("15:04"),
				summaryOrID(d.Meeting.Summary, d.Meeting.ID), reasonLabel(d.Reason), at)
		}
		_ = w.Flush()
		fmt.Fprintln(out)
	}

	switch {
	case rep.Result.Bootstrap:
		fmt.Fprintf(out, "%s delimiter not found; it would be appended\n", color.YellowString("!"))
	case rep.Result.Changed:
		fmt.Fprintf(out, "%s managed block would change\n", color.GreenString("~"))
	default:
		fmt.Fprintf(out, "%s managed block is up to date\n", color.BlueString("="))
	}
	fmt.Fprintln(out, color.New(color.Faint).Sprint(delimiter))
	for _, e := range rep.Entries {
		fmt.Fprintln(out, e)
	}
}

func reasonLabel(r trigger.Reason) string {
	switch r {
	case trigger.Triggered:
		return color.New(color.FgGreen).Sprint(r.String())
	case trigger.BackToBack:
		return color.New(color.FgBlue).Sprint(r.String())
	default:
		return color.New(color.FgYellow).Sprint(r.String())
	}
}

func summaryOrID(summary, id string) string {
	if summary != "" {
		return summary
	}
	if id != "" {
		return id
	}
	return "(untitled)"
}
