package cli

import (
	"github.com/spf13/cobra"

	logx "autodesk/pkg/logx"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the schedule in sync (systemd service mode)",
		Long: `Run until interrupted. The managed block is re-synced on serve.schedule
(cron syntax, in the configured timezone) and whenever the config file
changes. Readiness and watchdog pings are sent to systemd when
NOTIFY_SOCKET is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			s.log.Info("autodesk starting", logx.String("version", Version), logx.String("config", s.mgr.Path()))
			return s.app.Serve(cmd.Context(), s.mgr, s.logs)
		},
	}
}
