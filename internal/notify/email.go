package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"

	"github.com/openquiz/quizmaster-api/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer hands a rendered message to the outbound mail capability.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// TemplateRenderer renders the named notification templates embedded in
// the binary.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the embedded notification templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification templates: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render executes the named template (e.g. "daily_reminder.html") with the
// given context data.
func (r *TemplateRenderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewSMTPMailer creates a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers a single HTML message. The context deadline is not enforced
// below the dial because net/smtp does not take a context; the notification
// dispatcher isolates slow sends per recipient instead.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		m.cfg.From, to, subject, htmlBody,
	)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}
