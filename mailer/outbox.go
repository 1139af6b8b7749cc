package mailer

import (
	"context"
	"sync"

	accounts "github.com/goliatone/go-accounts"
)

// Outbox keeps sent messages in memory. It backs the "memory" transport
// and is handy in tests.
type Outbox struct {
	mu       sync.Mutex
	messages []accounts.Message
	err      error
}

var _ accounts.Mailer = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send implements accounts.Mailer.
func (o *Outbox) Send(ctx context.Context, msg accounts.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return o.err
	}

	msg.To = append([]string(nil), msg.To...)
	o.messages = append(o.messages, msg)
	return nil
}

// FailWith makes every following Send return err. Pass nil to recover.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Messages returns a copy of the delivered messages
func (o *Outbox) Messages() []accounts.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]accounts.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Reset drops delivered messages
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
}

// LogMailer writes messages to the logger instead of sending them.
// Bodies are omitted because activation mails carry PINs.
type LogMailer struct {
	Logger accounts.Logger
}

// Send implements accounts.Mailer.
func (l LogMailer) Send(_ context.Context, msg accounts.Message) error {
	if l.Logger != nil {
		l.Logger.Info("mail not sent, log transport", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}
