package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pipelinesURI  = "dataeng://pipelines"
	runsURIPrefix = "dataeng://pipeline/"
	runsURISuffix = "/runs"
)

func (s *Server) registerResources() {
	// ── dataeng://pipelines ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pipelinesURI,
		"All Pipelines",
		mcp.WithMIMEType("application/json"),
	), s.handlePipelinesResource)

	// ── dataeng://pipeline/{name}/runs ─────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			runsURIPrefix+"{name}"+runsURISuffix,
			"Runs of a Pipeline",
		),
		s.handlePipelineRunsResource,
	)
}

func (s *Server) handlePipelinesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pipelines := s.pipelines.Pipelines()
	summaries := make([]pipelineSummary, len(pipelines))
	for i, p := range pipelines {
		summaries[i] = summarizePipeline(p)
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pipelinesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePipelineRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	name := pipelineFromURI(uri)
	if name == "" {
		return nil, fmt.Errorf("could not extract pipeline name from URI: %s", uri)
	}

	runs, err := s.pipelines.History(ctx, name, 0)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(runs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// pipelineFromURI extracts the name from "dataeng://pipeline/{name}/runs".
func pipelineFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, runsURIPrefix)
	if !ok {
		return ""
	}
	name, ok := strings.CutSuffix(rest, runsURISuffix)
	if !ok || strings.Contains(name, "/") {
		return ""
	}
	return name
}
