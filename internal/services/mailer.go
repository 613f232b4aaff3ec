package services

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
	"github.com/notevault/backend/internal/config"
	"github.com/notevault/backend/pkg/logger"
)

// Mailer sends a single email. Implementations must be safe for concurrent
// use; handlers call Send either fire-and-forget (registration, resend) or
// synchronously (email change, where delivery failure aborts the request).
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through an SMTPS server. When no host or
// credentials are configured the mailer is disabled and Send is a no-op
// success, so local development works without a mail server.
type SMTPMailer struct {
	client      *goemail.SMTP
	fromAddress string
	fromName    string
	disabled    bool
}

func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		logger.Warn("smtp_disabled", map[string]interface{}{
			"reason": "missing host or credentials",
		})
		return &SMTPMailer{disabled: true}, nil
	}

	rawURL := fmt.Sprintf("smtps://%s:%s@%s", cfg.User, cfg.Password, cfg.Host)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	from, err := mail.ParseAddress(cfg.FromAddress)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.SkipVerify,
	}

	client, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, err
	}

	return &SMTPMailer{
		client:      client,
		fromAddress: from.Address,
		fromName:    cfg.FromName,
		disabled:    false,
	}, nil
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.disabled {
		return nil
	}

	// AddTo does not validate, so check the recipient before building the
	// message.
	if _, err := mail.ParseAddress(to); err != nil {
		return err
	}

	msg := goemail.NewHTMLMessage(m.fromAddress, subject, body)
	msg.SetName(m.fromName)
	msg.AddTo(to)

	return m.client.Send(msg)
}
