package accounts

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountRegistered    ActivityEventType = "account.registered"
	ActivityEventAccountStatusChanged ActivityEventType = "account.status.changed"
	ActivityEventManagerCreated       ActivityEventType = "account.manager.created"
	ActivityEventLoginSuccess         ActivityEventType = "account.login.success"
	ActivityEventLoginFailure         ActivityEventType = "account.login.failure"
)

// ActivityEvent captures audit-friendly information about an action.
// Account is a snapshot taken after the action completed.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	Account    *Account
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Notification delivery, auditing
// and event publishing subscribe through this interface.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// ActivitySinks fans an event out to every sink. All sinks run even
// when one fails, errors are joined.
type ActivitySinks []ActivitySink

// Record implements ActivitySink.
func (s ActivitySinks) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiActivitySink combines sinks, dropping nil entries
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	out := make(ActivitySinks, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return noopActivitySink{}
	case 1:
		return out[0]
	}
	return out
}

type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

// record delivers the event and logs sink failures. Delivery is best effort,
// callers never see the error.
func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: ActorTypeSystem}
	}

	if event.OccurredAt.IsZero() {
		now := time.Now
		if r.now != nil {
			now = r.now
		}
		event.OccurredAt = now()
	}

	if event.AccountID == "" && event.Account != nil {
		event.AccountID = event.Account.ID.String()
	}

	sink := normalizeActivitySink(r.sink)
	if err := sink.Record(ctx, event); err != nil {
		normalizeLogger(r.logger).Warn("activity sink error",
			"event", string(event.EventType),
			"account_id", event.AccountID,
			"error", err,
		)
	}
}

func cloneAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.PIN != nil {
		pin := *a.PIN
		c.PIN = &pin
	}
	if a.PassportNumber != nil {
		p := *a.PassportNumber
		c.PassportNumber = &p
	}
	return &c
}
