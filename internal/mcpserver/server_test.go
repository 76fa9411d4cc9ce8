package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/state"
	"github.com/starford/newsletter-scanner/internal/storage"
	"github.com/starford/newsletter-scanner/internal/testutil"
)

func testServer(t *testing.T) (*Server, *storage.Store, *state.DB) {
	t.Helper()
	_, store := testutil.TestDataDir(t)
	db := testutil.TestDB(t)
	return New(store, db, "test"), store, db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "latest_topics":
		result, err = srv.latestTopics(ctx, req)
	case "trending_topics":
		result, err = srv.trendingTopics(ctx, req)
	case "new_topics":
		result, err = srv.newTopics(ctx, req)
	case "get_report":
		result, err = srv.getReport(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNoScanYet(t *testing.T) {
	srv, _, _ := testServer(t)
	for _, tool := range []string{"latest_topics", "get_report"} {
		r := callTool(t, srv, tool, map[string]interface{}{})
		if r.IsError || !strings.Contains(resultText(r), "no scan data") {
			t.Errorf("%s = %q (error=%v)", tool, resultText(r), r.IsError)
		}
	}
}

func TestLatestTopics(t *testing.T) {
	srv, store, _ := testServer(t)
	_, err := store.SaveProcessed([]models.Topic{
		{Keyword: "agents", TrendScore: 0.9},
		{Keyword: "seo", TrendScore: 0.4},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "latest_topics", map[string]interface{}{"limit": float64(1)})
	var topics []models.Topic
	if err := json.Unmarshal([]byte(resultText(r)), &topics); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(topics) != 1 || topics[0].Keyword != "agents" {
		t.Errorf("topics = %+v", topics)
	}
}

func TestGetReport(t *testing.T) {
	srv, store, _ := testServer(t)
	if _, err := store.SaveReportJSON(models.Report{
		Metadata: models.ReportMetadata{ScanDate: "2026-10-14", ClustersFound: 1},
		Clusters: []models.Cluster{{Label: "ai, agents"}},
	}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "get_report", nil)
	var report models.Report
	if err := json.Unmarshal([]byte(resultText(r)), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Metadata.ClustersFound != 1 || report.Clusters[0].Label != "ai, agents" {
		t.Errorf("report = %+v", report)
	}
}

func TestHistoryTools(t *testing.T) {
	srv, _, db := testServer(t)
	ctx := context.Background()

	r := callTool(t, srv, "trending_topics", map[string]interface{}{})
	if resultText(r) != "not enough history for trends" {
		t.Errorf("trending = %q", resultText(r))
	}

	_ = db.AddRun(ctx, state.Run{TopTopics: []state.RunTopic{{Keyword: "agents", TrendScore: 0.5}}})
	r = callTool(t, srv, "new_topics", map[string]interface{}{"days": float64(3)})
	var fresh []state.NewTopic
	if err := json.Unmarshal([]byte(resultText(r)), &fresh); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(fresh) != 1 || fresh[0].Keyword != "agents" {
		t.Errorf("new = %+v", fresh)
	}
}

func TestReportFormatResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readReportFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != reportFormat || !strings.Contains(tc.Text, "trend_score") {
		t.Errorf("resource = %+v", contents[0])
	}
}
