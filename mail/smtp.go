// Package mail provides the bundled SMTP [gradauth.Notifier]. An unconfigured
// notifier degrades to dry-run deliveries, which keeps the token flows usable
// in development without a mail relay.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	gradauth "github.com/MrEthical07/gradauth"
)

const defaultTimeout = 10 * time.Second

// Config defines a public type used by gradauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Host and Port address the relay. An empty Host selects dry-run mode.
	Host string
	Port int

	Username string
	Password string

	// From is the envelope and header sender. Required when Host is set.
	From string

	// BaseURL prefixes the verification and reset links placed in messages.
	BaseURL string

	// Timeout bounds the whole relay conversation, dial included. Zero
	// selects a 10-second default.
	Timeout time.Duration
}

// SMTPNotifier defines a public type used by gradauth APIs.
//
// SMTPNotifier instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SMTPNotifier struct {
	config Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier describes the newsmtpnotifier operation and its observable behavior.
//
// NewSMTPNotifier may return an error when input validation, dependency calls, or security checks fail.
// NewSMTPNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSMTPNotifier(cfg Config) (*SMTPNotifier, error) {
	if cfg.Host != "" {
		if cfg.Port <= 0 || cfg.Port > 65535 {
			return nil, errors.New("smtp port out of range")
		}
		if cfg.From == "" {
			return nil, errors.New("smtp sender required")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &SMTPNotifier{
		config: cfg,
		send:   sendWithTimeout(cfg.Timeout),
	}, nil
}

// sendWithTimeout replicates the smtp.SendMail sequence over a connection
// with a hard deadline, so a hung relay cannot block a request goroutine.
func sendWithTimeout(timeout time.Duration) func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return err
		}

		conn, err := (&net.Dialer{Timeout: timeout}).Dial("tcp", addr)
		if err != nil {
			return err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			return err
		}

		c, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return err
		}
		defer c.Close()

		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return err
			}
		}
		if a != nil {
			if ok, _ := c.Extension("AUTH"); ok {
				if err := c.Auth(a); err != nil {
					return err
				}
			}
		}
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return c.Quit()
	}
}

// DryRun reports whether the notifier has no relay configured.
func (n *SMTPNotifier) DryRun() bool {
	return n == nil || n.config.Host == ""
}

// SendEmailVerification describes the sendemailverification operation and its observable behavior.
//
// SendEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// SendEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (n *SMTPNotifier) SendEmailVerification(ctx context.Context, email, token string) (gradauth.Delivery, error) {
	return n.deliver(ctx, email, "Verify your email address",
		fmt.Sprintf("Confirm your email address by opening:\r\n\r\n%s/verify-email?token=%s\r\n", n.config.BaseURL, token))
}

// SendPasswordReset describes the sendpasswordreset operation and its observable behavior.
//
// SendPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// SendPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, token string) (gradauth.Delivery, error) {
	return n.deliver(ctx, email, "Reset your password",
		fmt.Sprintf("Reset your password by opening:\r\n\r\n%s/reset-password?token=%s\r\n", n.config.BaseURL, token))
}

func (n *SMTPNotifier) deliver(ctx context.Context, email, subject, body string) (gradauth.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return gradauth.Delivery{}, err
	}
	if n.DryRun() {
		return gradauth.Delivery{DryRun: true}, nil
	}

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	msg := buildMessage(n.config.From, email, subject, body)
	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	if err := n.send(addr, auth, n.config.From, []string{email}, msg); err != nil {
		return gradauth.Delivery{}, fmt.Errorf("smtp delivery failed: %w", err)
	}

	return gradauth.Delivery{Sent: true}, nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
