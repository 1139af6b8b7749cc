package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	accounts "github.com/goliatone/go-accounts"
)

type fakeSMTPSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSMTPSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func TestNewSelectsTransport(t *testing.T) {
	m, err := New(Options{Transport: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Outbox{}, m)

	m, err = New(Options{}, nil)
	require.NoError(t, err)
	assert.IsType(t, LogMailer{}, m)

	m, err = New(Options{Transport: "SMTP", SMTP: SMTPConfig{Host: "smtp.example.com", From: "bank@example.com"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	m, err = New(Options{Transport: "mailgun", Mailgun: MailgunConfig{Domain: "mg.example.com", APIKey: "key"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MailgunMailer{}, m)

	_, err = New(Options{Transport: "pigeon"}, nil)
	assert.Error(t, err)
}

func TestNewSMTPMailerRequiresHostAndSender(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "bank@example.com"})
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "bank@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
}

func TestSMTPMailerSend(t *testing.T) {
	sender := &fakeSMTPSender{}
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "bank@example.com"})
	require.NoError(t, err)
	m.newClient = func(SMTPConfig) (smtpSender, error) { return sender, nil }

	err = m.Send(context.Background(), accounts.Message{
		To:      []string{"manager1@example.com", "manager2@example.com"},
		Subject: "New client registered",
		Body:    "1 waiting",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	to := sender.sent[0].GetToString()
	assert.Equal(t, []string{"<manager1@example.com>", "<manager2@example.com>"}, to)
}

func TestSMTPMailerSendFailures(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "bank@example.com"})
	require.NoError(t, err)
	m.newClient = func(SMTPConfig) (smtpSender, error) {
		return &fakeSMTPSender{err: errors.New("connection refused")}, nil
	}

	err = m.Send(context.Background(), accounts.Message{To: []string{"a@example.com"}, Subject: "s", Body: "b"})
	assert.ErrorContains(t, err, "failed to deliver mail")

	err = m.Send(context.Background(), accounts.Message{Subject: "s", Body: "b"})
	assert.ErrorContains(t, err, "no recipients")

	err = m.Send(context.Background(), accounts.Message{To: []string{"not an address"}, Subject: "s"})
	assert.Error(t, err)
}

func TestOutbox(t *testing.T) {
	o := NewOutbox()
	ctx := context.Background()

	require.NoError(t, o.Send(ctx, accounts.Message{To: []string{"a@example.com"}, Subject: "one"}))
	require.NoError(t, o.Send(ctx, accounts.Message{To: []string{"b@example.com"}, Subject: "two"}))

	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Subject)

	o.FailWith(errors.New("down"))
	assert.Error(t, o.Send(ctx, accounts.Message{To: []string{"c@example.com"}}))
	assert.Len(t, o.Messages(), 2)

	o.FailWith(nil)
	o.Reset()
	assert.Empty(t, o.Messages())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, o.Send(cancelled, accounts.Message{To: []string{"d@example.com"}}), context.Canceled)
}
