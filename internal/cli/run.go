package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dataeng/internal/logging"
	"dataeng/internal/report"
	"dataeng/internal/service"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline>...",
		Short: "Runs the named pipelines in order, stopping at the first failure.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := loadApp(flags, nil)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			for _, name := range args {
				logger := logging.WithPipeline(name)
				logger.Info("run started")
				res, err := a.svc.RunPipeline(cmd.Context(), name, service.TriggerManual)
				if err != nil {
					return fmt.Errorf("pipeline %s: %w", name, err)
				}
				report.Result(cmd.OutOrStdout(), res)
				logger.Info("run finished", "rows", res.RowsRead, "duration", res.Duration)
			}
			return nil
		},
	}
}
