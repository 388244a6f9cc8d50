package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("verify_load",
		mcp.WithPromptDescription("Run a pipeline and check what it loaded"),
		mcp.WithArgument("pipeline",
			mcp.ArgumentDescription("Pipeline to run"),
			mcp.RequiredArgument(),
		),
	), s.handleVerifyLoadPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("investigate_failure",
		mcp.WithPromptDescription("Find out why the latest run of a pipeline failed"),
		mcp.WithArgument("pipeline",
			mcp.ArgumentDescription("Pipeline whose runs are inspected"),
			mcp.RequiredArgument(),
		),
	), s.handleInvestigateFailurePrompt)
}

func (s *Server) handleVerifyLoadPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pipeline := req.Params.Arguments["pipeline"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Run and verify pipeline %s", pipeline),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Run the "%s" pipeline and verify the load. Follow these steps:

1. Use list_pipelines to see its sources, sinks and verification queries
2. Run it with run_pipeline and note rowsRead and rowsWritten per sink
3. For every sql sink, use run_query with "SELECT COUNT(*) FROM <table>" and compare with the sink's row count
4. Run the pipeline's own verification queries with run_query
5. Summarize the result and point out anything unexpected (empty tables, missing values, row count drift)`, pipeline),
				},
			},
		},
	}, nil
}

func (s *Server) handleInvestigateFailurePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pipeline := req.Params.Arguments["pipeline"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Investigate failures of pipeline %s", pipeline),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Investigate why the "%s" pipeline failed. Follow these steps:

1. Use pipeline_history to find the latest runs with status "error" and read their error
2. Use list_pipelines to look at the pipeline's sources, rates and sinks
3. If the error names a missing exchange rate, an unreachable source or a schema mismatch, explain which part of the configuration causes it
4. If a table is involved, inspect it with run_query (e.g. "SELECT * FROM <table> LIMIT 5")
5. Suggest the smallest configuration change that fixes it. Do not rerun the pipeline unless asked.`, pipeline),
				},
			},
		},
	}, nil
}
