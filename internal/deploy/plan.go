// Package deploy provisions the scheduled Cloud Run Job that runs the daily scan.
package deploy

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// APIs enabled before anything else is created.
var APIs = []string{
	"run.googleapis.com",
	"cloudscheduler.googleapis.com",
	"artifactregistry.googleapis.com",
	"cloudbuild.googleapis.com",
	"secretmanager.googleapis.com",
}

// Job sizing.
const (
	jobCPU         = "1"
	jobMemory      = "1Gi"
	jobTaskTimeout = "300s"
	jobMaxRetries  = "1"
	jobArgs        = "scan,--email"
)

// Environment of the job container. The image's config.yaml expands these.
const (
	EnvProject          = "GCP_PROJECT"
	EnvSender           = "NEWSLETTER_SENDER"
	EnvRecipient        = "NEWSLETTER_RECIPIENT"
	EnvGmailAppPassword = "GMAIL_APP_PASSWORD"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
)

// Settings are the resource names and locations of one deployment.
type Settings struct {
	Project        string
	Region         string
	Repository     string
	Image          string
	Job            string
	Scheduler      string
	Schedule       string
	TimeZone       string
	Secret         string // Secret Manager name of the Gmail app password
	AISecret       string // Secret Manager name of the Anthropic key; empty disables summaries
	Sender         string
	Recipient      string
	ServiceAccount string
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Project, validation.Required),
		validation.Field(&s.Region, validation.Required),
		validation.Field(&s.Repository, validation.Required),
		validation.Field(&s.Job, validation.Required),
		validation.Field(&s.Scheduler, validation.Required),
		validation.Field(&s.Schedule, validation.Required),
		validation.Field(&s.TimeZone, validation.Required),
		validation.Field(&s.Secret, validation.Required),
		validation.Field(&s.Sender, validation.Required),
		validation.Field(&s.Recipient, validation.Required),
	)
}

// EnvVars are the plain variables set on the job.
func (s Settings) EnvVars() map[string]string {
	return map[string]string{
		EnvProject:   s.Project,
		EnvSender:    s.Sender,
		EnvRecipient: s.Recipient,
	}
}

// SecretVars maps job variables to the Secret Manager secrets they are read from.
func (s Settings) SecretVars() map[string]string {
	out := map[string]string{EnvGmailAppPassword: s.Secret}
	if s.AISecret != "" {
		out[EnvAnthropicAPIKey] = s.AISecret
	}
	return out
}

// joinVars renders m as gcloud's KEY=VALUE,... list in key order.
func joinVars(m map[string]string, suffix string) string {
	keys := slices.Sorted(maps.Keys(m))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k] + suffix
	}
	return strings.Join(parts, ",")
}

// ImageURI is the Artifact Registry reference the job runs.
func (s Settings) ImageURI() string {
	image := s.Image
	if image == "" {
		image = s.Job
	}
	return fmt.Sprintf("%s-docker.pkg.dev/%s/%s/%s:latest", s.Region, s.Project, s.Repository, image)
}

// RunURI is the job's run endpoint that the scheduler calls.
func (s Settings) RunURI() string {
	return fmt.Sprintf("https://%s-run.googleapis.com/apis/run.googleapis.com/v1/namespaces/%s/jobs/%s:run",
		s.Region, s.Project, s.Job)
}

// Account returns the OAuth service account of the trigger. It defaults to
// {job}-invoker in the project.
func (s Settings) Account() string {
	if s.ServiceAccount != "" {
		return s.ServiceAccount
	}
	return fmt.Sprintf("%s-invoker@%s.iam.gserviceaccount.com", s.Job, s.Project)
}

// OnError says what a failed step does.
type OnError int

const (
	// Abort stops the deployment.
	Abort OnError = iota
	// Continue ignores the failure, e.g. a resource that already exists.
	Continue
	// Update runs the step's fallback command instead.
	Update
)

// Step is one gcloud invocation.
type Step struct {
	Name     string
	Args     []string
	OnError  OnError
	Fallback []string
}

// String renders the command as it would be typed.
func (s Step) String() string {
	return command(s.Args)
}

func command(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " *\"'") {
			a = "\"" + a + "\""
		}
		quoted[i] = a
	}
	return "gcloud " + strings.Join(quoted, " ")
}

// Plan returns the ordered provisioning steps.
func Plan(s Settings) ([]Step, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	project := "--project=" + s.Project
	region := "--region=" + s.Region
	location := "--location=" + s.Region
	image := s.ImageURI()

	jobFlags := []string{
		"--image=" + image,
		project, region,
		"--cpu=" + jobCPU,
		"--memory=" + jobMemory,
		"--task-timeout=" + jobTaskTimeout,
		"--max-retries=" + jobMaxRetries,
		"--set-env-vars=" + joinVars(s.EnvVars(), ""),
		"--set-secrets=" + joinVars(s.SecretVars(), ":latest"),
		"--args=" + jobArgs,
	}
	schedFlags := []string{
		location, project,
		"--schedule=" + s.Schedule,
		"--time-zone=" + s.TimeZone,
		"--http-method=POST",
		"--uri=" + s.RunURI(),
		"--oauth-service-account-email=" + s.Account(),
	}

	return []Step{
		{
			Name: "enable APIs",
			Args: append(append([]string{"services", "enable"}, APIs...), project),
		},
		{
			Name:    "create Artifact Registry repository",
			Args:    []string{"artifacts", "repositories", "create", s.Repository, "--repository-format=docker", location, project},
			OnError: Continue,
		},
		{
			Name: "build and push image",
			Args: []string{"builds", "submit", "--tag=" + image, project, "."},
		},
		{
			Name:     "create Cloud Run job",
			Args:     append([]string{"run", "jobs", "create", s.Job}, jobFlags...),
			OnError:  Update,
			Fallback: append([]string{"run", "jobs", "update", s.Job}, jobFlags...),
		},
		{
			Name:     "create scheduler trigger",
			Args:     append([]string{"scheduler", "jobs", "create", "http", s.Scheduler}, schedFlags...),
			OnError:  Update,
			Fallback: append([]string{"scheduler", "jobs", "update", "http", s.Scheduler}, schedFlags...),
		},
	}, nil
}
