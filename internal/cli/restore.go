package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Reinstall the schedule saved by the last sync",
		Long: `Reinstall cron_backup_path into the schedule store. Every sync writes
this snapshot before it touches the store, so restore undoes the most
recent sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			path, err := s.app.Restore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s restored schedule from %s\n", color.GreenString("✓"), path)
			return nil
		},
	}
}
