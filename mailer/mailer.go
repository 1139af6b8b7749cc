// Package mailer provides the mail transports used by the account notifier.
package mailer

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/goliatone/go-accounts"
)

const (
	TransportSMTP    = "smtp"
	TransportMailgun = "mailgun"
	TransportMemory  = "memory"
	TransportLog     = "log"
)

// Options selects and configures a transport
type Options struct {
	Transport string
	SMTP      SMTPConfig
	Mailgun   MailgunConfig
}

// New builds the mailer for opts.Transport. An empty transport logs mail.
func New(opts Options, logger accounts.Logger) (accounts.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Transport)) {
	case TransportSMTP:
		return NewSMTPMailer(opts.SMTP)
	case TransportMailgun:
		return NewMailgunMailer(opts.Mailgun)
	case TransportMemory:
		return NewOutbox(), nil
	case TransportLog, "":
		return LogMailer{Logger: logger}, nil
	}
	return nil, goerrors.New("unsupported mail transport", goerrors.CategoryBadInput).
		WithTextCode("MAIL_TRANSPORT_UNSUPPORTED").
		WithMetadata(map[string]any{"transport": opts.Transport})
}
