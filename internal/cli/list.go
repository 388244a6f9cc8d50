package cli

import (
	"github.com/spf13/cobra"

	"dataeng/internal/report"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the configured pipelines.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			report.Pipelines(cmd.OutOrStdout(), a.svc.Pipelines())
			return nil
		},
	}
}
