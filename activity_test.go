package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestMultiActivitySinkRunsEverySink(t *testing.T) {
	first := &eventRecorder{}
	second := &eventRecorder{}
	failing := accounts.ActivitySinkFunc(func(context.Context, accounts.ActivityEvent) error {
		return errors.New("broker unavailable")
	})

	sink := accounts.MultiActivitySink(first, nil, failing, second)
	err := sink.Record(context.Background(), accounts.ActivityEvent{EventType: accounts.ActivityEventAccountRegistered})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestMultiActivitySinkCollapses(t *testing.T) {
	only := &eventRecorder{}
	assert.Same(t, only, accounts.MultiActivitySink(nil, only))

	empty := accounts.MultiActivitySink()
	assert.NoError(t, empty.Record(context.Background(), accounts.ActivityEvent{}))
}

func TestSinkFailuresDoNotFailOperations(t *testing.T) {
	repo := newTestRepo(t)
	logger := &recordingLogger{}

	handler := accounts.NewRegisterAccountHandler(repo,
		accounts.WithRegisterLogger(logger),
		accounts.WithRegisterActivitySink(accounts.ActivitySinkFunc(func(context.Context, accounts.ActivityEvent) error {
			return errors.New("sink down")
		})),
	)

	account, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
		Email:          "ann@example.com",
		PassportNumber: "AB123456",
		FirstName:      "Ann",
		LastName:       "Lee",
	})
	require.NoError(t, err)
	assert.NotNil(t, account)
	assert.True(t, logger.Contains("activity sink error"))
}

func TestActivityEventsDefaultActorAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	sink := &eventRecorder{}

	_, err := accounts.NewCreateManagerHandler(repo,
		accounts.WithCreateManagerActivitySink(sink),
		accounts.WithCreateManagerLogger(&recordingLogger{}),
	).Create(context.Background(), accounts.CreateManagerMessage{
		Email:    "boss@example.com",
		Password: "a long enough password",
	})
	require.NoError(t, err)

	events := sink.ofType(accounts.ActivityEventManagerCreated)
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActorTypeSystem, events[0].Actor.Type)
	assert.False(t, events[0].OccurredAt.IsZero())
	assert.NotEmpty(t, events[0].AccountID)
}
