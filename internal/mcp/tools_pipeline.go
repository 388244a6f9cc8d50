package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
)

const defaultFetchSize = 100

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("list_pipelines",
		mcp.WithDescription("List the configured ETL pipelines with their sources, sinks and triggers"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListPipelines)

	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a pipeline end to end (extract, transform, load). Replaces csv outputs and tables loaded in replace mode."),
		mcp.WithString("name", mcp.Description("Pipeline name (use list_pipelines to see available names)"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("run_query",
		mcp.WithDescription("Run a read-only SQL query (SELECT, WITH, PRAGMA, EXPLAIN, SHOW, DESCRIBE) against the store a pipeline loads into"),
		mcp.WithString("pipeline", mcp.Description("Pipeline whose store is queried"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL query to execute"), mcp.Required()),
		mcp.WithNumber("fetchSize", mcp.Description("Maximum number of rows returned (default 100)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleRunQuery)

	s.mcp.AddTool(mcp.NewTool("describe_store",
		mcp.WithDescription("Get the tables and columns of the store a pipeline loads into"),
		mcp.WithString("pipeline", mcp.Description("Pipeline whose store is described"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleDescribeStore)

	s.mcp.AddTool(mcp.NewTool("pipeline_history",
		mcp.WithDescription("List recent runs of a pipeline, newest first"),
		mcp.WithString("pipeline", mcp.Description("Pipeline name (optional, defaults to all pipelines)")),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 20)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePipelineHistory)
}

type pipelineSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources"`
	Sinks       []string `json:"sinks"`
	Schedule    string   `json:"schedule,omitempty"`
	Watch       []string `json:"watch,omitempty"`
	Queries     []string `json:"queries,omitempty"`
}

func summarizePipeline(p etl.Pipeline) pipelineSummary {
	out := pipelineSummary{
		Name:        p.Name,
		Description: p.Description,
		Sources:     make([]string, len(p.Sources)),
		Sinks:       make([]string, len(p.Sinks)),
		Schedule:    p.Schedule,
		Watch:       p.Watch,
		Queries:     p.Queries,
	}
	for i, src := range p.Sources {
		out.Sources[i] = src.Type
	}
	for i, sink := range p.Sinks {
		out.Sinks[i] = sink.Type + ":" + sink.Target()
	}
	return out
}

// tableResult is the compact shape query results are returned in.
type tableResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Total     int      `json:"total"`
	Truncated bool     `json:"truncated,omitempty"`
}

func newTableResult(t *etl.Table, limit int) tableResult {
	rows := t.Rows()
	res := tableResult{Columns: t.Schema.FieldNames(), Total: len(rows)}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
		res.Truncated = true
	}
	res.Rows = rows
	return res
}

func (s *Server) handleListPipelines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipelines := s.pipelines.Pipelines()
	summaries := make([]pipelineSummary, len(pipelines))
	for i, p := range pipelines {
		summaries[i] = summarizePipeline(p)
	}
	return jsonResult(summaries)
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	result, err := s.pipelines.RunPipeline(ctx, name, s.trigger)
	if err != nil {
		if result == nil {
			return nil, fmt.Errorf("run pipeline: %w", err)
		}
		// The run started: report what happened alongside the failure.
		res, jerr := jsonResult(result)
		if jerr != nil {
			return nil, jerr
		}
		res.IsError = true
		return res, nil
	}
	return jsonResult(result)
}

func (s *Server) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipeline := req.GetString("pipeline", "")
	query := req.GetString("query", "")
	if pipeline == "" || query == "" {
		return nil, fmt.Errorf("pipeline and query are required")
	}
	if !dbclient.IsReadQuery(query) {
		return mcp.NewToolResultError(fmt.Sprintf("query rejected, only read-only statements are allowed: %s", truncate(query, 100))), nil
	}

	t, err := s.pipelines.Query(ctx, pipeline, query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return jsonResult(newTableResult(t, int(req.GetFloat("fetchSize", defaultFetchSize))))
}

func (s *Server) handlePipelineHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.pipelines.History(ctx, req.GetString("pipeline", ""), int(req.GetFloat("limit", 0)))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(runs)
}

func (s *Server) handleDescribeStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipeline := req.GetString("pipeline", "")
	if pipeline == "" {
		return nil, fmt.Errorf("pipeline is required")
	}
	schema, err := s.pipelines.Schema(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("describe store: %w", err)
	}
	return jsonResult(schema)
}
