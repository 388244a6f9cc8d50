package cli

import (
	"github.com/spf13/cobra"

	"dataeng/internal/report"
)

func newQueryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "query <pipeline> <sql>",
		Short: "Runs a read-only query against the store a pipeline loads into.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.svc.Query(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			report.Table(cmd.OutOrStdout(), t)
			return nil
		},
	}
}
