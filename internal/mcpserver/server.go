// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes scan results for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/newsletter-scanner/internal/apperr"
	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/state"
)

const (
	defaultLimit = 15
	defaultDays  = 7
	reportFormat = "scanner://report-format"
)

// Reports reads stored scan output.
type Reports interface {
	LoadLatestReport() (*models.Report, string, error)
	LoadLatestProcessed() ([]models.Topic, string, error)
}

// History reads run history.
type History interface {
	Trending(ctx context.Context, days int) ([]state.TrendingTopic, error)
	NewTopics(ctx context.Context, days int) ([]state.NewTopic, error)
}

// Server wraps the MCP server with scanner tools.
type Server struct {
	mcp     *server.MCPServer
	reports Reports
	history History
}

// New creates a new MCP server with all scanner tools registered.
func New(reports Reports, history History, version string) *Server {
	s := &Server{reports: reports, history: history}

	s.mcp = server.NewMCPServer(
		"Newsletter Scanner",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("latest_topics",
		mcp.WithDescription("Top trending topics from the most recent scan, highest trend score first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of topics (default 15)")),
	), s.latestTopics)

	s.mcp.AddTool(mcp.NewTool("trending_topics",
		mcp.WithDescription("Keywords whose mean trend score rose over the last days of scan history."),
		mcp.WithNumber("days", mcp.Description("History window in days (default 7)")),
	), s.trendingTopics)

	s.mcp.AddTool(mcp.NewTool("new_topics",
		mcp.WithDescription("Keywords that first appeared in scan history within the last days."),
		mcp.WithNumber("days", mcp.Description("History window in days (default 7)")),
	), s.newTopics)

	s.mcp.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("The full latest exported report: metadata, topics and clusters with summaries. "+
			"See the "+reportFormat+" resource for the field reference."),
	), s.getReport)

	s.mcp.AddResource(
		mcp.NewResource(reportFormat, "Report Format",
			mcp.WithResourceDescription("Field reference for exported scan reports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func noData(err error) (*mcp.CallToolResult, bool) {
	if errors.Is(err, apperr.ErrNoData) {
		return mcp.NewToolResultText("no scan data yet, run a scan first"), true
	}
	return nil, false
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Server) latestTopics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := positive(req.GetInt("limit", defaultLimit), defaultLimit)
	topics, _, err := s.reports.LoadLatestProcessed()
	if err != nil {
		if res, ok := noData(err); ok {
			return res, nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(topics[:min(limit, len(topics))]), nil
}

func (s *Server) trendingTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := positive(req.GetInt("days", defaultDays), defaultDays)
	topics, err := s.history.Trending(ctx, days)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(topics) == 0 {
		return mcp.NewToolResultText("not enough history for trends"), nil
	}
	return jsonResult(topics), nil
}

func (s *Server) newTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := positive(req.GetInt("days", defaultDays), defaultDays)
	topics, err := s.history.NewTopics(ctx, days)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(topics) == 0 {
		return mcp.NewToolResultText("no new topics"), nil
	}
	return jsonResult(topics), nil
}

func (s *Server) getReport(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, _, err := s.reports.LoadLatestReport()
	if err != nil {
		if res, ok := noData(err); ok {
			return res, nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report), nil
}

func (s *Server) readReportFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      reportFormat,
			MIMEType: "text/markdown",
			Text:     ReportFormat,
		},
	}, nil
}
