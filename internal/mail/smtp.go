// Package mail sends plain-text transactional email.
//
// smtp.go -- Mailer interface, SMTPMailer and NopMailer.
// Messages are composed with jordan-wright/email and delivered over a
// context-aware SMTP connection that never falls back to plaintext.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

// implicitTLSPort is the SMTPS port; any other port must offer STARTTLS.
const implicitTLSPort = 465

// Mailer sends one message to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, subject string, recipients []string, textBody string) error
}

// SMTPConfig holds all configuration for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends email via SMTP.
// Compatible with any SMTP provider: SES, Mailgun, Mailpit (local dev), etc.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer with the given config.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// NopMailer discards all outbound email. Used when MAIL_SERVER is not configured.
type NopMailer struct{}

func (NopMailer) Send(context.Context, string, []string, string) error { return nil }

// ErrNoRecipients is returned by Send when recipients is empty.
var ErrNoRecipients = errors.New("no recipients")

// Send composes and delivers a plain-text message.
func (m *SMTPMailer) Send(ctx context.Context, subject string, recipients []string, textBody string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	msg, err := m.compose(subject, recipients, textBody)
	if err != nil {
		return fmt.Errorf("composing email: %w", err)
	}
	if err := m.deliver(ctx, recipients, msg); err != nil {
		return fmt.Errorf("sending email %q: %w", subject, err)
	}
	return nil
}

// compose renders the RFC 5322 message bytes.
func (m *SMTPMailer) compose(subject string, recipients []string, textBody string) ([]byte, error) {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = recipients
	e.Subject = subject
	e.Text = []byte(textBody)
	return e.Bytes()
}

// dial opens the transport: implicit TLS on 465, plain TCP otherwise (upgraded in deliver).
// The connection respects ctx cancellation.
func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if m.cfg.Port == implicitTLSPort {
		d := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
		return d.DialContext(ctx, "tcp", addr)
	}
	return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
}

// deliver runs the SMTP conversation for msg.
func (m *SMTPMailer) deliver(ctx context.Context, recipients []string, msg []byte) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if m.cfg.Port != implicitTLSPort {
		// Reject the session if the server does not advertise STARTTLS.
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO: %w", err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

// FormatDuration renders a duration as a human-readable expiry string.
// e.g. time.Hour → "1 hour", 48*time.Hour → "2 days", 30*time.Minute → "30 minutes".
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Minutes()), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
