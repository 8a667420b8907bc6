package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Yellowatch/boxumco"
)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("mail: smtp host and port required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from address required")
	}
	return &SMTPMailer{config: cfg, send: smtp.SendMail}, nil
}

// Send delivers msg. The context is honoured only before the dial.
func (m *SMTPMailer) Send(ctx context.Context, msg boxumco.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("mail: header injection")
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := net.JoinHostPort(m.config.Host, fmt.Sprint(m.config.Port))
	if err := m.send(addr, auth, m.config.From, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("mail: smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) render(msg boxumco.Email) []byte {
	created := msg.Created
	if created.IsZero() {
		created = time.Now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", created.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
