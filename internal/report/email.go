package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/starford/newsletter-scanner/internal/models"
)

// EmailSettings is the SMTP configuration of the newsletter.
type EmailSettings struct {
	Enabled    bool
	Server     string
	Port       int
	Sender     string
	Password   string
	Recipients []string
}

// Complete reports whether every field needed to send is set.
func (s EmailSettings) Complete() bool {
	return s.Sender != "" && s.Password != "" && len(s.Recipients) > 0
}

// Sender delivers a rendered newsletter.
type Sender interface {
	Send(ctx context.Context, n Newsletter) error
}

// Emailer renders and sends the newsletter.
type Emailer struct {
	settings EmailSettings
	sender   Sender
	logger   *slog.Logger
}

// NewEmailer returns an Emailer. A nil sender uses SMTP with STARTTLS.
func NewEmailer(settings EmailSettings, sender Sender, logger *slog.Logger) *Emailer {
	if sender == nil {
		sender = &SMTPSender{settings: settings}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emailer{settings: settings, sender: sender, logger: logger}
}

// Send renders and delivers the newsletter. It returns false without error when
// email is disabled or the settings are incomplete.
func (e *Emailer) Send(ctx context.Context, clusters []models.Cluster, items []models.Item, meta models.RunMetadata, intro string) (bool, error) {
	if !e.settings.Enabled {
		e.logger.Info("email report disabled")
		return false, nil
	}
	if !e.settings.Complete() {
		e.logger.Error("email settings incomplete: sender, app password and recipients are required")
		return false, nil
	}
	n, err := BuildNewsletter(clusters, items, meta, intro)
	if err != nil {
		return false, err
	}
	if err := e.sender.Send(ctx, n); err != nil {
		return false, fmt.Errorf("report: send email: %w", err)
	}
	e.logger.Info("newsletter sent", slog.Int("recipients", len(e.settings.Recipients)))
	return true, nil
}

// SMTPSender sends through an authenticated STARTTLS SMTP server such as Gmail.
type SMTPSender struct {
	settings EmailSettings
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, n Newsletter) error {
	m, err := s.message(n)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.settings.Server,
		mail.WithPort(s.settings.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.settings.Sender),
		mail.WithPassword(s.settings.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

func (s *SMTPSender) message(n Newsletter) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.settings.Sender); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(s.settings.Recipients...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(n.Subject)
	m.SetBodyString(mail.TypeTextPlain, n.Text)
	m.AddAlternativeString(mail.TypeTextHTML, n.HTML)
	return m, nil
}
