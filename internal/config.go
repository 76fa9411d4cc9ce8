package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"github.com/starford/newsletter-scanner/internal/fetcher"
	pkgconfig "github.com/starford/newsletter-scanner/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Dedup backends.
const (
	DedupBackendSQLite   = "sqlite"
	DedupBackendBigQuery = "bigquery"
)

// Environment variables that override values from the config file.
const (
	EnvGmailAppPassword = "GMAIL_APP_PASSWORD"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
)

// Config represents the application configuration.
type Config struct {
	General    GeneralConfig                   `yaml:"general"`
	Sources    map[string]fetcher.SourceConfig `yaml:"sources"`
	Processing ProcessingConfig                `yaml:"processing"`
	Scoring    ScoringConfig                   `yaml:"scoring"`
	Reporting  ReportingConfig                 `yaml:"reporting"`
	Categories map[string]CategoryConfig       `yaml:"categories"`
	Email      EmailConfig                     `yaml:"email"`
	AI         AIConfig                        `yaml:"ai"`
	BigQuery   BigQueryConfig                  `yaml:"bigquery"`
	App        ApplicationConfig               `yaml:"app"`
	State      StateConfig                     `yaml:"state"`
	Deploy     DeployConfig                    `yaml:"deploy"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name := range c.Sources {
		if !knownSource(name) {
			return fmt.Errorf("sources: unknown source %q", name)
		}
	}
	checks := []validation.Validatable{
		&c.General, &c.Processing, &c.Scoring, &c.Email, &c.AI, &c.BigQuery, &c.App, &c.Deploy,
	}
	for _, v := range checks {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv copies runtime secrets from the environment over file values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvGmailAppPassword); ok && v != "" {
		c.Email.AppPassword = v
	}
	if v, ok := lookup(EnvAnthropicAPIKey); ok && v != "" {
		c.AI.APIKey = v
	}
}

// DataDir returns the root directory for scan output.
func (c *Config) DataDir() string {
	return c.General.DataDir
}

// StatePath returns the SQLite file path, defaulting to scanner.db inside the data dir.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(c.General.DataDir, "scanner.db")
}

// Source returns the configuration for a named source (zero value when absent).
func (c *Config) Source(name string) fetcher.SourceConfig {
	return c.Sources[name]
}

// DisplayNames maps category keys to their display names.
func (c *Config) DisplayNames() map[string]string {
	out := make(map[string]string, len(c.Categories))
	for k, v := range c.Categories {
		out[k] = v.DisplayName
	}
	return out
}

func knownSource(name string) bool {
	for _, n := range fetcher.Names {
		if n == name {
			return true
		}
	}
	return false
}

// GeneralConfig holds scan-wide settings.
type GeneralConfig struct {
	Language                 string  `yaml:"language"`
	MaxItemsPerSource        int     `yaml:"max_items_per_source"`
	DedupSimilarityThreshold float64 `yaml:"dedup_similarity_threshold"`
	DataDir                  string  `yaml:"data_dir"`
}

// Validate validates the general configuration.
func (c *GeneralConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxItemsPerSource, validation.Min(0)),
		validation.Field(&c.DedupSimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.DataDir, validation.Required),
	)
}

// ProcessingConfig controls keyword extraction and clustering.
type ProcessingConfig struct {
	ExtractionMethod     string           `yaml:"extraction_method"`
	TopKeywords          int              `yaml:"top_keywords"`
	NgramRange           []int            `yaml:"ngram_range"`
	MinDocumentFrequency int              `yaml:"min_document_frequency"`
	Clustering           ClusteringConfig `yaml:"clustering"`
}

// Validate validates the processing configuration.
func (c *ProcessingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ExtractionMethod, validation.In("tfidf")),
		validation.Field(&c.TopKeywords, validation.Required, validation.Min(1)),
		validation.Field(&c.NgramRange, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.MinDocumentFrequency, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.NgramRange[0] < 1 || c.NgramRange[0] > c.NgramRange[1] {
		return fmt.Errorf("processing: invalid ngram_range %v", c.NgramRange)
	}
	return c.Clustering.Validate()
}

// ClusteringConfig controls K-means topic clustering.
type ClusteringConfig struct {
	Enabled     bool `yaml:"enabled"`
	MinClusters int  `yaml:"min_clusters"`
	MaxClusters int  `yaml:"max_clusters"`
}

// Validate validates the clustering configuration.
func (c *ClusteringConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MinClusters, validation.Required, validation.Min(2)),
		validation.Field(&c.MaxClusters, validation.Required),
	); err != nil {
		return err
	}
	if c.MinClusters > c.MaxClusters {
		return fmt.Errorf("clustering: min_clusters %d > max_clusters %d", c.MinClusters, c.MaxClusters)
	}
	return nil
}

// ScoringConfig holds trend score weights.
type ScoringConfig struct {
	Weights           WeightsConfig `yaml:"weights"`
	RecencyDecayHours float64       `yaml:"recency_decay_hours"`
}

// Validate validates the scoring configuration.
func (c *ScoringConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RecencyDecayHours, validation.Min(0.0)),
	); err != nil {
		return err
	}
	return c.Weights.Validate()
}

// WeightsConfig are the trend score factor weights.
type WeightsConfig struct {
	Frequency       float64 `yaml:"frequency"`
	Recency         float64 `yaml:"recency"`
	SourceDiversity float64 `yaml:"source_diversity"`
	Engagement      float64 `yaml:"engagement"`
}

// Validate validates the weights.
func (c *WeightsConfig) Validate() error {
	unit := []validation.Rule{validation.Min(0.0), validation.Max(1.0)}
	return validation.ValidateStruct(c,
		validation.Field(&c.Frequency, unit...),
		validation.Field(&c.Recency, unit...),
		validation.Field(&c.SourceDiversity, unit...),
		validation.Field(&c.Engagement, unit...),
	)
}

// ReportingConfig controls console output and file exports.
type ReportingConfig struct {
	Console ConsoleConfig `yaml:"console"`
	Export  ExportConfig  `yaml:"export"`
}

// ConsoleConfig controls the console report.
type ConsoleConfig struct {
	TopN        int  `yaml:"top_n"`
	ShowSources bool `yaml:"show_sources"`
}

// ExportConfig toggles report files.
type ExportConfig struct {
	JSON bool `yaml:"json"`
	CSV  bool `yaml:"csv"`
}

// CategoryConfig describes one keyword category.
type CategoryConfig struct {
	DisplayName string `yaml:"display_name"`
}

// EmailConfig holds Gmail SMTP settings for the newsletter.
type EmailConfig struct {
	Enabled     bool     `yaml:"enabled"`
	SMTPServer  string   `yaml:"smtp_server"`
	SMTPPort    int      `yaml:"smtp_port"`
	Sender      string   `yaml:"sender"`
	Recipients  []string `yaml:"recipients"`
	AppPassword string   `yaml:"app_password"`
}

// Validate validates the email configuration. The app password is not checked
// here: it is normally injected at runtime and its absence only prevents sending.
func (c *EmailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SMTPServer, validation.Required),
		validation.Field(&c.SMTPPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Sender, validation.When(c.Enabled, validation.Required), is.EmailFormat),
		validation.Field(&c.Recipients, validation.When(c.Enabled, validation.Required), validation.Each(is.EmailFormat)),
	)
}

// AIConfig controls Claude cluster summaries.
type AIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"anthropic_api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.MaxTokens, validation.Min(1)),
	)
}

// BigQueryConfig controls the BigQuery sent-article dedup backend.
type BigQueryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Project   string `yaml:"project"`
	Dataset   string `yaml:"dataset"`
	DedupDays int    `yaml:"dedup_days"`
}

// Validate validates the BigQuery configuration.
func (c *BigQueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Project, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Dataset, validation.Required),
		validation.Field(&c.DedupDays, validation.Min(1)),
	)
}

// Backend returns the dedup backend in use.
func (c *BigQueryConfig) Backend() string {
	if c.Enabled {
		return DedupBackendBigQuery
	}
	return DedupBackendSQLite
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Auth     AuthConfig `yaml:"auth"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StateConfig holds the SQLite state database location.
type StateConfig struct {
	Path string `yaml:"path"`
}

// DeployConfig holds the Cloud Run Job provisioning parameters.
type DeployConfig struct {
	Project        string `yaml:"project"`
	Region         string `yaml:"region"`
	Repository     string `yaml:"repository"`
	Image          string `yaml:"image"`
	Job            string `yaml:"job"`
	Scheduler      string `yaml:"scheduler"`
	Schedule       string `yaml:"schedule"`
	TimeZone       string `yaml:"time_zone"`
	Secret         string `yaml:"secret"`
	AISecret       string `yaml:"ai_secret"`
	Sender         string `yaml:"sender"`
	Recipient      string `yaml:"recipient"`
	ServiceAccount string `yaml:"service_account"`
}

// Validate validates the deploy configuration. Project is checked when a deploy runs.
func (c *DeployConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.Job, validation.Required),
		validation.Field(&c.Schedule, validation.Required),
		validation.Field(&c.TimeZone, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Language:                 "english",
			MaxItemsPerSource:        100,
			DedupSimilarityThreshold: 0.85,
			DataDir:                  "data",
		},
		Sources: map[string]fetcher.SourceConfig{},
		Processing: ProcessingConfig{
			ExtractionMethod:     "tfidf",
			TopKeywords:          30,
			NgramRange:           []int{1, 3},
			MinDocumentFrequency: 2,
			Clustering: ClusteringConfig{
				Enabled:     true,
				MinClusters: 3,
				MaxClusters: 15,
			},
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				Frequency:       0.30,
				Recency:         0.30,
				SourceDiversity: 0.25,
				Engagement:      0.15,
			},
			RecencyDecayHours: 48,
		},
		Reporting: ReportingConfig{
			Console: ConsoleConfig{TopN: 15, ShowSources: true},
			Export:  ExportConfig{JSON: true, CSV: true},
		},
		Categories: map[string]CategoryConfig{},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		AI: AIConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 1024,
		},
		BigQuery: BigQueryConfig{
			Dataset:   "newsletter_scanner",
			DedupDays: 7,
		},
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP:     HTTPConfig{Port: 8080},
			Auth:     AuthConfig{Mode: AuthModeDisabled},
		},
		Deploy: DeployConfig{
			Region:     "europe-west1",
			Repository: "newsletter-scanner",
			Job:        "newsletter-scanner",
			Scheduler:  "newsletter-scanner-daily",
			Schedule:   "0 8 * * *",
			TimeZone:   "Europe/Prague",
			Secret:     "gmail-app-password",
			AISecret:   "anthropic-api-key",
		},
	}
}

// LoadConfig reads the config file at path over the defaults. A missing file
// yields the defaults and a warning; a malformed one is an error.
func LoadConfig(path string, logger *slog.Logger) (*Config, error) {
	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Warn("config file not found, using defaults", slog.String("path", path))
	}
	return cfg, nil
}

// Keywords maps a category key to its lower-cased dictionary words.
type Keywords map[string][]string

// Categories returns the category keys in sorted order.
func (k Keywords) Categories() []string {
	out := make([]string, 0, len(k))
	for c := range k {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// LoadKeywords reads the category dictionaries. Entries that are not lists are
// ignored; a missing file yields an empty set and a warning.
func LoadKeywords(path string, logger *slog.Logger) (Keywords, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("keywords file not found", slog.String("path", path))
		return Keywords{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keywords %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keywords %s: %w", path, err)
	}

	out := make(Keywords, len(raw))
	for category, v := range raw {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		words := make([]string, 0, len(list))
		for _, w := range list {
			words = append(words, strings.ToLower(strings.TrimSpace(fmt.Sprint(w))))
		}
		out[category] = words
	}
	logger.Info("keywords loaded", slog.Int("categories", len(out)))
	return out, nil
}
