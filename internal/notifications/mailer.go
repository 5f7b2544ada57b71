package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inkwell/internal/observability"

	"gopkg.in/mail.v2"
)

// Mail is a single plain-text notification message.
type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers notification mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *mail.Dialer
}

// NewSMTPMailer builds a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 20 * time.Second
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &SMTPMailer{dialer: d}
}

// Send implements Mailer.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		observability.MailDeliveries.WithLabelValues("failed").Inc()
		return fmt.Errorf("send mail to %s: %w", m.To, err)
	}
	observability.MailDeliveries.WithLabelValues("sent").Inc()
	return nil
}

// LogMailer writes mail to the log instead of sending it. Used when no SMTP
// host is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (l *LogMailer) Send(ctx context.Context, m Mail) error {
	l.logger.InfoContext(ctx, "notification mail",
		slog.String("from", m.From),
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
	)
	observability.MailDeliveries.WithLabelValues("logged").Inc()
	return nil
}

// NewMailer picks the SMTP mailer when a host is configured and the log
// mailer otherwise.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) Mailer {
	if cfg.Host == "" {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}
