package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/scan"
	"github.com/starford/newsletter-scanner/internal/sse"
	"github.com/starford/newsletter-scanner/internal/state"
	"github.com/starford/newsletter-scanner/internal/testutil"
)

type testEnv struct {
	server  *httptest.Server
	store   *state.DB
	pub     *recordingPublisher
	scanner *Scanner
	release chan struct{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Publish(ev sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func setupEnv(t *testing.T, authEnabled bool, token string) *testEnv {
	t.Helper()
	_, store := testutil.TestDataDir(t)
	db := testutil.TestDB(t)

	env := &testEnv{store: db, pub: &recordingPublisher{}, release: make(chan struct{})}
	run := func(ctx context.Context, opts scan.Options) (*scan.Result, error) {
		select {
		case <-env.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &scan.Result{RunID: "run-1", Status: scan.StatusOK}, nil
	}
	env.scanner = NewScanner(context.Background(), run, env.pub, testutil.QuietLogger())

	topics := []models.Topic{
		{Keyword: "agents", TrendScore: 0.9},
		{Keyword: "seo", TrendScore: 0.5},
		{Keyword: "ga4", TrendScore: 0.2},
	}
	if _, err := store.SaveProcessed(topics); err != nil {
		t.Fatal(err)
	}
	report := models.Report{
		Metadata: models.ReportMetadata{ScanDate: "2026-10-14", TopicsExtracted: 3},
		Topics:   topics,
		Clusters: []models.Cluster{},
	}
	if _, err := store.SaveReportJSON(report); err != nil {
		t.Fatal(err)
	}

	h := NewHandler(store, db, env.scanner)
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	env.server = httptest.NewServer(NewRouter(h, authEnabled, token, sseHandler))
	t.Cleanup(func() {
		select {
		case <-env.release:
		default:
			close(env.release)
		}
		env.scanner.Wait()
		env.server.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestLatestReport(t *testing.T) {
	env := setupEnv(t, false, "")
	resp := env.do(t, http.MethodGet, "/reports/latest", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var r models.Report
	decode(t, resp, &r)
	if r.Metadata.TopicsExtracted != 3 || len(r.Topics) != 3 {
		t.Errorf("report = %+v", r)
	}
	if !strings.HasSuffix(resp.Header.Get("X-Report-File"), "_report.json") {
		t.Errorf("X-Report-File = %q", resp.Header.Get("X-Report-File"))
	}
}

func TestLatestReport_NoData(t *testing.T) {
	_, store := testutil.TestDataDir(t)
	h := NewHandler(store, testutil.TestDB(t), nil)
	srv := httptest.NewServer(NewRouter(h, false, "", nil))
	defer srv.Close()

	for _, path := range []string{"/reports/latest", "/topics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestTopics_Limit(t *testing.T) {
	env := setupEnv(t, false, "")
	resp := env.do(t, http.MethodGet, "/topics?limit=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Total  int            `json:"total"`
		Topics []models.Topic `json:"topics"`
	}
	decode(t, resp, &body)
	if body.Total != 3 || len(body.Topics) != 2 || body.Topics[0].Keyword != "agents" {
		t.Errorf("body = %+v", body)
	}
}

func TestHistory(t *testing.T) {
	env := setupEnv(t, false, "")
	ctx := context.Background()
	today := time.Now().Format(time.DateOnly)
	yesterday := time.Now().AddDate(0, 0, -1).Format(time.DateOnly)
	_ = env.store.AddRun(ctx, state.Run{Date: yesterday, TopTopics: []state.RunTopic{{Keyword: "seo", TrendScore: 0.2}}})
	_ = env.store.AddRun(ctx, state.Run{Date: today, TopTopics: []state.RunTopic{
		{Keyword: "seo", TrendScore: 0.6},
		{Keyword: "agents", TrendScore: 0.4},
	}})

	resp := env.do(t, http.MethodGet, "/history/trending?days=7", "", nil)
	var trending struct {
		Runs   int                   `json:"runs"`
		Topics []state.TrendingTopic `json:"topics"`
	}
	decode(t, resp, &trending)
	if trending.Runs != 2 || len(trending.Topics) != 2 {
		t.Errorf("trending = %+v", trending)
	}

	resp = env.do(t, http.MethodGet, "/history/new", "", nil)
	var fresh struct {
		Days   int              `json:"days"`
		Topics []state.NewTopic `json:"topics"`
	}
	decode(t, resp, &fresh)
	if fresh.Days != defaultDays || len(fresh.Topics) != 2 {
		t.Errorf("new = %+v", fresh)
	}
}

func TestStartScan_Conflict(t *testing.T) {
	env := setupEnv(t, false, "")

	resp := env.do(t, http.MethodPost, "/scan", `{"email":true,"sources":["rss"]}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first scan status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/scan", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second scan status = %d, want 409", resp.StatusCode)
	}

	close(env.release)
	env.scanner.Wait()
	if env.scanner.Running() {
		t.Error("scanner still running")
	}
	got := env.pub.types()
	if len(got) != 2 || got[0] != sse.TypeScanStarted || got[1] != sse.TypeScanFinished {
		t.Errorf("events = %v", got)
	}

	resp = env.do(t, http.MethodPost, "/scan", "{not json", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", resp.StatusCode)
	}
}

func TestStartScan_Unavailable(t *testing.T) {
	_, store := testutil.TestDataDir(t)
	srv := httptest.NewServer(NewRouter(NewHandler(store, testutil.TestDB(t), nil), false, "", nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scan", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	env := setupEnv(t, true, "secret")

	if resp := env.do(t, http.MethodGet, "/topics", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/topics", "", map[string]string{"Authorization": "Bearer wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/topics", "", map[string]string{"Authorization": "Bearer secret"}); resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/events", "", map[string]string{"Authorization": "Bearer secret"}); resp.StatusCode != http.StatusOK {
		t.Errorf("events status = %d, want 200", resp.StatusCode)
	}
}
