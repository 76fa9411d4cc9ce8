package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/newsletter-scanner/internal/models"
	"github.com/starford/newsletter-scanner/internal/storage"
	"github.com/starford/newsletter-scanner/internal/testutil"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Auth.Mode = "token"
	cfg.App.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Processing.TopKeywords != 30 || cfg.Scoring.Weights.Frequency != 0.30 {
		t.Errorf("defaults not applied: %+v", cfg.Processing)
	}
	if cfg.StatePath() != filepath.Join("data", "scanner.db") {
		t.Errorf("StatePath = %q", cfg.StatePath())
	}
}

func TestLoadConfig_MergesAndExpandsEnv(t *testing.T) {
	t.Setenv("SCANNER_TEST_SENDER", "news@example.com")
	t.Setenv(EnvGmailAppPassword, "app-secret")
	path := writeFile(t, t.TempDir(), "config.yaml", `
general:
  max_items_per_source: 20
sources:
  reddit:
    enabled: false
  google_news:
    queries: ["ai marketing"]
email:
  enabled: true
  sender: ${SCANNER_TEST_SENDER}
  recipients: [team@example.com]
`)
	cfg, err := LoadConfig(path, testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.MaxItemsPerSource != 20 || cfg.General.DataDir != "data" {
		t.Errorf("general = %+v", cfg.General)
	}
	if cfg.Source("reddit").IsEnabled() || !cfg.Source("google_news").IsEnabled() || !cfg.Source("hackernews").IsEnabled() {
		t.Error("source enablement wrong")
	}
	if cfg.Email.Sender != "news@example.com" || cfg.Email.AppPassword != "app-secret" || cfg.Email.SMTPPort != 587 {
		t.Errorf("email = %+v", cfg.Email)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown source":   "sources:\n  myspace: {}\n",
		"weights":          "scoring:\n  weights:\n    frequency: 1.5\n",
		"clusters":         "processing:\n  clustering:\n    min_clusters: 9\n    max_clusters: 4\n",
		"email recipients": "email:\n  enabled: true\n  sender: a@example.com\n",
		"bigquery project": "bigquery:\n  enabled: true\n",
		"malformed":        "general: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			if _, err := LoadConfig(path, testutil.QuietLogger()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadKeywords(t *testing.T) {
	path := writeFile(t, t.TempDir(), "keywords.yaml", `
ai_ml: [" LLM ", "Agents"]
marketing:
  - SEO
note: not a list
`)
	kw, err := LoadKeywords(path, testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := kw.Categories(); len(got) != 2 || got[0] != "ai_ml" || got[1] != "marketing" {
		t.Errorf("categories = %v", got)
	}
	if kw["ai_ml"][0] != "llm" || kw["ai_ml"][1] != "agents" {
		t.Errorf("ai_ml = %v", kw["ai_ml"])
	}

	missing, err := LoadKeywords(filepath.Join(t.TempDir(), "none.yaml"), testutil.QuietLogger())
	if err != nil || len(missing) != 0 {
		t.Errorf("missing file = %v, %v", missing, err)
	}
}

func testOptions(t *testing.T, out *bytes.Buffer) []Option {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.General.DataDir = t.TempDir()
	return []Option{WithConfig(cfg), WithOutput(out), WithLogger(testutil.QuietLogger())}
}

func TestScan_DryRun(t *testing.T) {
	var out bytes.Buffer
	opts := append(testOptions(t, &out), WithKeywords(Keywords{"marketing": {"seo"}}))
	if err := Scan(context.Background(), ScanRequest{DryRun: true}, opts...); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "google_news, reddit, hackernews, google_trends, linkedin_rss") ||
		!strings.Contains(text, "Keyword categories: marketing") {
		t.Errorf("output:\n%s", text)
	}
}

func TestReport_NoData(t *testing.T) {
	var out bytes.Buffer
	if err := Report(context.Background(), FormatConsole, 15, testOptions(t, &out)...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No processed data found") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReport_CSV(t *testing.T) {
	var out bytes.Buffer
	opts := testOptions(t, &out)
	app, _ := newApplication(opts)
	fs, err := storage.NewFS(app.config.DataDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := storage.NewStore(fs, testutil.QuietLogger()).SaveProcessed([]models.Topic{{Keyword: "seo", TrendScore: 0.5}}); err != nil {
		t.Fatal(err)
	}

	if err := Report(context.Background(), FormatCSV, 15, opts...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "_report.csv") {
		t.Errorf("output = %q", out.String())
	}
	if err := Report(context.Background(), "pdf", 15, opts...); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestHistory_NeedsTwoRuns(t *testing.T) {
	var out bytes.Buffer
	if err := History(context.Background(), 7, testOptions(t, &out)...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "0 runs recorded") || !strings.Contains(out.String(), "At least 2 runs") {
		t.Errorf("output = %q", out.String())
	}
}

func TestShowConfig_Validate(t *testing.T) {
	var out bytes.Buffer
	raw := []byte("general: {}\nsources: {}\n")
	if err := ShowConfig(raw, false, true, testOptions(t, &out)...); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "Missing sections: processing, scoring, categories") {
		t.Errorf("output:\n%s", text)
	}
	if strings.Contains(text, "Current configuration") {
		t.Error("validate alone should not dump the config")
	}

	out.Reset()
	if err := ShowConfig(nil, false, false, testOptions(t, &out)...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "max_items_per_source: 100") {
		t.Errorf("dump:\n%s", out.String())
	}
}

func TestDeploy_DryRunUsesOverrides(t *testing.T) {
	var out bytes.Buffer
	req := DeployRequest{
		Project: "acme", Region: "us-central1", DryRun: true,
		Sender: "scanner@acme.dev", Recipient: "team@acme.dev",
	}
	if err := Deploy(context.Background(), req, testOptions(t, &out)...); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"us-central1-docker.pkg.dev/acme/newsletter-scanner/newsletter-scanner:latest",
		"NEWSLETTER_SENDER=scanner@acme.dev",
		"ANTHROPIC_API_KEY=anthropic-api-key:latest",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := Deploy(context.Background(), DeployRequest{DryRun: true}, testOptions(t, &out)...); err == nil {
		t.Error("deploy without project should fail")
	}
}

func TestDeploySettings_FallBackToEmailConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Email.Sender = "me@acme.dev"
	cfg.Email.Recipients = []string{"a@acme.dev", "b@acme.dev"}
	app := &application{config: cfg}

	s := app.deploySettings(DeployRequest{Project: "acme"})
	if s.Sender != "me@acme.dev" || s.Recipient != "a@acme.dev" {
		t.Errorf("settings = %+v", s)
	}
	s = app.deploySettings(DeployRequest{Project: "acme", Recipient: "c@acme.dev"})
	if s.Recipient != "c@acme.dev" {
		t.Errorf("recipient = %q, want the request value", s.Recipient)
	}
}

// A job started with the variables the deploy plan sets loads the cloud config.
func TestLoadConfig_CloudConfigWithJobEnvironment(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Email.Sender = "scanner@acme.dev"
	cfg.Email.Recipients = []string{"team@acme.dev"}
	settings := (&application{config: cfg}).deploySettings(DeployRequest{Project: "acme"})

	for k, v := range settings.EnvVars() {
		t.Setenv(k, v)
	}
	for k := range settings.SecretVars() {
		t.Setenv(k, "secret-value")
	}

	got, err := LoadConfig("../config/config.cloud.yaml", testutil.QuietLogger())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Email.Sender != "scanner@acme.dev" || len(got.Email.Recipients) != 1 || got.Email.Recipients[0] != "team@acme.dev" {
		t.Errorf("email = %+v", got.Email)
	}
	if got.BigQuery.Project != "acme" || got.AI.APIKey != "secret-value" || got.Email.AppPassword != "secret-value" {
		t.Errorf("bigquery project %q, ai key %q, app password %q", got.BigQuery.Project, got.AI.APIKey, got.Email.AppPassword)
	}
}
