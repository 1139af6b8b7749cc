// Package activitymap turns account activity events into the flat record
// published to other systems.
package activitymap

import (
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

// ActorSystem is reported when an event carries no actor at all
const ActorSystem = "system"

// Record is the published shape of an accounts.ActivityEvent. The account
// snapshot contributes its id and, on request, its email. The PIN and the
// password hash are never copied.
type Record struct {
	Type       string         `json:"type"`
	AccountID  string         `json:"account_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Email      string         `json:"email,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize
type Option func(*options)

type options struct {
	includeEmail bool
}

// WithEmail copies the snapshot email into the record
func WithEmail() Option {
	return func(o *options) {
		o.includeEmail = true
	}
}

// Normalize flattens event into a Record
func Normalize(event accounts.ActivityEvent, opts ...Option) Record {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	actorType := strings.TrimSpace(string(event.Actor.Type))
	if actorType == "" {
		actorType = ActorSystem
	}

	record := Record{
		Type:       string(event.EventType),
		AccountID:  accountID(event),
		ActorID:    strings.TrimSpace(event.Actor.ID),
		ActorType:  actorType,
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		Metadata:   cloneMetadata(event.Metadata),
		OccurredAt: occurredAt,
	}

	if o.includeEmail && event.Account != nil {
		record.Email = event.Account.Email
	}

	return record
}

func accountID(event accounts.ActivityEvent) string {
	if id := strings.TrimSpace(event.AccountID); id != "" {
		return id
	}
	if event.Account != nil {
		return event.Account.ID.String()
	}
	return ""
}

func cloneMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
