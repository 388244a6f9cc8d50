package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"dataeng/internal/service"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs pipelines on their cron schedules and file watches until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, service.LogEmitter{})
			if err != nil {
				return err
			}
			defer a.Close()

			slog.Info("serving pipelines", "count", len(a.svc.Pipelines()))
			if err := a.svc.Serve(cmd.Context(), shutdownTimeout); err != nil {
				return err
			}
			slog.Info("stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for running pipelines on shutdown")
	return cmd
}
