package mailer

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/mailgun/mailgun-go/v5"

	accounts "github.com/goliatone/go-accounts"
)

// MailgunConfig holds the Mailgun API settings
type MailgunConfig struct {
	Domain string
	APIKey string
	From   string
	// APIBase overrides the API endpoint, e.g. mailgun.APIBaseEU
	APIBase string
}

// MailgunMailer delivers messages through the Mailgun HTTP API
type MailgunMailer struct {
	cfg    MailgunConfig
	client *mailgun.Client
}

var _ accounts.Mailer = (*MailgunMailer)(nil)

func NewMailgunMailer(cfg MailgunConfig) (*MailgunMailer, error) {
	if strings.TrimSpace(cfg.Domain) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, goerrors.New("mailgun domain and api key are required", goerrors.CategoryBadInput).
			WithTextCode("MAILGUN_CONFIG_REQUIRED")
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = "no-reply@" + cfg.Domain
	}

	client := mailgun.NewMailgun(cfg.APIKey)
	if cfg.APIBase != "" {
		if err := client.SetAPIBase(cfg.APIBase); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid mailgun api base")
		}
	}

	return &MailgunMailer{cfg: cfg, client: client}, nil
}

// Send implements accounts.Mailer.
func (m *MailgunMailer) Send(ctx context.Context, msg accounts.Message) error {
	if len(msg.To) == 0 {
		return goerrors.New("mail has no recipients", goerrors.CategoryBadInput).
			WithTextCode("MAIL_NO_RECIPIENTS")
	}

	message := mailgun.NewMessage(m.cfg.Domain, m.cfg.From, msg.Subject, msg.Body, msg.To...)
	if _, err := m.client.Send(ctx, message); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver mail").
			WithMetadata(map[string]any{
				"domain":     m.cfg.Domain,
				"recipients": len(msg.To),
			})
	}
	return nil
}
