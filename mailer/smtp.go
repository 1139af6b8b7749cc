package mailer

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"

	accounts "github.com/goliatone/go-accounts"
)

// SMTPConfig holds the SMTP relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is one of "opportunistic" (default), "mandatory" or "none".
	TLS     string
	Timeout time.Duration
}

// SMTPMailer delivers messages through an SMTP relay
type SMTPMailer struct {
	cfg SMTPConfig
	// newClient is swapped in tests
	newClient func(cfg SMTPConfig) (smtpSender, error)
}

type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

var _ accounts.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, goerrors.New("smtp host is required", goerrors.CategoryBadInput).
			WithTextCode("SMTP_HOST_REQUIRED")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, goerrors.New("smtp sender address is required", goerrors.CategoryBadInput).
			WithTextCode("SMTP_FROM_REQUIRED")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg, newClient: newSMTPClient}, nil
}

// Send implements accounts.Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg accounts.Message) error {
	out, err := buildMsg(m.cfg.From, msg)
	if err != nil {
		return err
	}

	client, err := m.newClient(m.cfg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create smtp client")
	}

	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver mail").
			WithMetadata(map[string]any{
				"host":       m.cfg.Host,
				"recipients": len(msg.To),
			})
	}
	return nil
}

func buildMsg(from string, msg accounts.Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, goerrors.New("mail has no recipients", goerrors.CategoryBadInput).
			WithTextCode("MAIL_NO_RECIPIENTS")
	}

	out := mail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := out.To(msg.To...); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

func newSMTPClient(cfg SMTPConfig) (smtpSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}

	switch strings.ToLower(strings.TrimSpace(cfg.TLS)) {
	case "mandatory":
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return mail.NewClient(cfg.Host, opts...)
}
