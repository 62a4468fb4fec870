// Package email delivers the portal's outgoing mail. The password reset
// notice is the only message the portal sends.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
)

const dialTimeout = 10 * time.Second

// message is a rendered plain-text mail ready for the wire.
type message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

func resetMessage(from string, notice auth.ResetNotice, now time.Time) message {
	var body strings.Builder
	body.WriteString("A password reset was requested for your HR Portal account.\n\n")
	fmt.Fprintf(&body, "Open %s to choose a new password. The link expires in %s.\n\n", notice.Link, expiryText(notice.ExpiresIn))
	body.WriteString("If you did not request this, ignore this email. Your password stays unchanged.\n")
	return message{From: from, To: notice.To, Subject: "Reset your HR Portal password", Body: body.String(), Date: now}
}

func expiryText(d time.Duration) string {
	d = d.Round(time.Minute)
	switch {
	case d <= 0:
		return "a few minutes"
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d == time.Minute:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
}

// encode renders headers and body with CRLF line endings.
func (m message) encode() []byte {
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }
	header("From", m.From)
	header("To", m.To)
	header("Subject", m.Subject)
	header("Date", m.Date.UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

// logMailer stands in when SMTP is disabled. It never logs the link, which
// carries the raw reset token.
type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) SendPasswordReset(_ context.Context, notice auth.ResetNotice) error {
	m.logger.Info("password reset email suppressed", "to", notice.To, "expiresIn", notice.ExpiresIn)
	return nil
}

type smtpMailer struct {
	addr   string
	host   string
	from   string
	auth   smtp.Auth
	useTLS bool
	now    func() time.Time
}

// New returns the mailer selected by cfg. Without EMAIL_ENABLED and an SMTP
// host, reset notices are logged instead of sent.
func New(cfg config.Config, logger *slog.Logger) auth.Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		if logger == nil {
			logger = slog.Default()
		}
		return logMailer{logger: logger}
	}
	m := &smtpMailer{
		addr:   net.JoinHostPort(cfg.SMTPHost, fmt.Sprint(cfg.SMTPPort)),
		host:   cfg.SMTPHost,
		from:   cfg.EmailFrom,
		useTLS: cfg.SMTPUseTLS,
		now:    time.Now,
	}
	if cfg.SMTPUser != "" {
		m.auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return m
}

func (m *smtpMailer) SendPasswordReset(ctx context.Context, notice auth.ResetNotice) error {
	if strings.TrimSpace(notice.To) == "" {
		return nil
	}
	return m.deliver(ctx, resetMessage(m.from, notice, m.now()))
}

func (m *smtpMailer) deliver(ctx context.Context, msg message) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", m.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	steps := []struct {
		name string
		run  func() error
	}{
		{"starttls", func() error {
			if !m.useTLS {
				return nil
			}
			return client.StartTLS(&tls.Config{ServerName: m.host})
		}},
		{"auth", func() error {
			if m.auth == nil {
				return nil
			}
			return client.Auth(m.auth)
		}},
		{"mail from", func() error { return client.Mail(msg.From) }},
		{"rcpt to", func() error { return client.Rcpt(msg.To) }},
		{"data", func() error {
			w, err := client.Data()
			if err != nil {
				return err
			}
			if _, err := w.Write(msg.encode()); err != nil {
				_ = w.Close()
				return err
			}
			return w.Close()
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("smtp %s: %w", step.name, err)
		}
	}
	return client.Quit()
}
