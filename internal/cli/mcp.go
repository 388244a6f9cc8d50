package cli

import (
	"github.com/spf13/cobra"

	mcpserver "dataeng/internal/mcp"
	"dataeng/internal/service"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serves the pipelines as MCP tools on stdin/stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags, service.LogEmitter{})
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcpserver.New(mcpserver.Deps{
				Pipelines: a.svc,
				Version:   Version,
				Trigger:   service.TriggerMCP,
			})
			return srv.ServeStdio()
		},
	}
}
