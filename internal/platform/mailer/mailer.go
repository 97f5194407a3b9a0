// Package mailer delivers templated emails over SMTP, or logs them when no
// SMTP host is configured.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/redact"
	"gopkg.in/mail.v2"
)

// Sender delivers one rendered message.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer renders templates and hands messages to a Sender.
// With a nil Sender messages are only logged.
type Mailer struct {
	from     string
	sender   Sender
	renderer *Renderer
	logger   *slog.Logger
}

// New builds a Mailer from cfg. An empty host yields a log-only mailer.
func New(cfg config.MailConfig, log *slog.Logger) (*Mailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	m := &Mailer{
		from:     cfg.From,
		renderer: renderer,
		logger:   log.With("component", "mailer"),
	}
	if cfg.Host != "" {
		m.sender = mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m, nil
}

// NewWithSender builds a Mailer around an existing Sender.
func NewWithSender(from string, sender Sender, log *slog.Logger) (*Mailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Mailer{from: from, sender: sender, renderer: renderer, logger: log.With("component", "mailer")}, nil
}

// SendTemplate renders template with data and sends it to to.
func (m *Mailer) SendTemplate(ctx context.Context, to, template string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logger.FromContextOrDefault(ctx, m.logger)

	subject, body, err := m.renderer.Render(template, data)
	if err != nil {
		return err
	}

	if m.sender == nil {
		log.Info("email not sent, no smtp host configured",
			"to", redact.Email(to),
			"template", template,
			"subject", subject)
		return nil
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Info("email sent", "to", redact.Email(to), "template", template)
	return nil
}
