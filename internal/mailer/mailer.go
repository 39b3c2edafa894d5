package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/cinemarwa/backend/internal/config"
)

// Sender delivers one email. Delivery is best-effort; callers must never let
// a send failure affect payment state.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	host string
	port int
	auth smtp.Auth
	from string
}

// NewSMTPSender builds a sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPSender{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		auth: auth,
		from: cfg.FromAddress,
	}
}

// Send delivers a single plain-text message.
func (s *SMTPSender) Send(to, subject, body string) error {
	if s.host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := smtp.SendMail(addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// Noop is a sender that silently drops mail, used when SMTP is unconfigured.
type Noop struct{}

func (Noop) Send(to, subject, body string) error { return nil }
