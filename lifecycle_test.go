package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestLifecycleRequiresManagerBeforeLookup(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo)
	ctx := context.Background()

	client := registerClient(t, repo, "client@example.com", "AB123456")
	missing := uuid.New()

	for _, p := range []*accounts.Principal{nil, accounts.NewPrincipal(client)} {
		_, err := lifecycle.List(ctx, p, accounts.ListFilter{})
		assert.True(t, accounts.IsForbidden(err), "list: %v", err)

		_, err = lifecycle.Get(ctx, p, missing)
		assert.True(t, accounts.IsForbidden(err), "get unknown id: %v", err)

		_, err = lifecycle.Activate(ctx, p, client.ID)
		assert.True(t, accounts.IsForbidden(err), "activate: %v", err)

		_, err = lifecycle.ConfirmDeactivation(ctx, p, missing)
		assert.True(t, accounts.IsForbidden(err), "confirm unknown id: %v", err)
	}

	stored, err := repo.Accounts().GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusCreating, stored.Status)
}

func TestLifecycleHidesManagerAccounts(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo)
	ctx := context.Background()

	manager := seedManager(t, repo, "boss@example.com")
	other := seedManager(t, repo, "other-boss@example.com")
	p := accounts.NewPrincipal(manager)

	_, err := lifecycle.Get(ctx, p, other.ID)
	assert.True(t, accounts.IsAccountNotFound(err))

	_, err = lifecycle.Activate(ctx, p, other.ID)
	assert.True(t, accounts.IsAccountNotFound(err))

	_, err = lifecycle.Get(ctx, p, uuid.New())
	assert.True(t, accounts.IsAccountNotFound(err))

	list, err := lifecycle.List(ctx, p, accounts.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLifecycleFullFlow(t *testing.T) {
	repo := newTestRepo(t)
	sink := &eventRecorder{}
	lifecycle := newTestLifecycle(repo, accounts.WithStateMachineActivitySink(sink))
	ctx := context.Background()

	manager := seedManager(t, repo, "boss@example.com")
	mp := accounts.NewPrincipal(manager)
	client := registerClient(t, repo, "client@example.com", "AB123456")

	assert.Equal(t, accounts.AccountStatusCreating, client.Status)
	assert.False(t, client.IsActive)
	assert.Nil(t, client.PIN)

	activated, err := lifecycle.Activate(ctx, mp, client.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusActivated, activated.Status)
	assert.True(t, activated.IsActive)
	require.True(t, activated.HasPIN())
	assert.True(t, accounts.IsWellFormedPIN(*activated.PIN, accounts.DefaultPINLength))
	require.NotNil(t, activated.StatusChanged)

	byPIN, err := repo.Accounts().GetByPIN(ctx, *activated.PIN)
	require.NoError(t, err)
	assert.Equal(t, client.ID, byPIN.ID)

	_, err = lifecycle.Activate(ctx, mp, client.ID)
	assert.True(t, accounts.IsInvalidTransition(err), "second activation: %v", err)

	_, err = lifecycle.ConfirmDeactivation(ctx, mp, client.ID)
	assert.True(t, accounts.IsInvalidTransition(err), "confirm before request: %v", err)

	closing, err := lifecycle.Deactivate(ctx, accounts.NewPrincipal(activated))
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusClosing, closing.Status)
	assert.False(t, closing.IsActive)
	assert.Equal(t, *activated.PIN, *closing.PIN)
	assert.False(t, closing.StatusChanged.Before(*activated.StatusChanged))

	closed, err := lifecycle.ConfirmDeactivation(ctx, mp, client.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusClosed, closed.Status)
	assert.False(t, closed.IsActive)

	_, err = lifecycle.ConfirmDeactivation(ctx, mp, client.ID)
	assert.True(t, accounts.IsTerminalState(err), "confirm closed: %v", err)

	_, err = lifecycle.Activate(ctx, mp, client.ID)
	assert.True(t, accounts.IsTerminalState(err), "activate closed: %v", err)

	events := sink.ofType(accounts.ActivityEventAccountStatusChanged)
	require.Len(t, events, 3)
	assert.Equal(t, accounts.ActorTypeManager, events[0].Actor.Type)
	assert.Equal(t, accounts.ActorTypeClient, events[1].Actor.Type)
	assert.Equal(t, client.ID.String(), events[1].Actor.ID)
	assert.Equal(t, accounts.AccountStatusClosed, events[2].ToStatus)
}

func TestLifecycleDeactivateRequiresAuthentication(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo)

	_, err := lifecycle.Deactivate(context.Background(), nil)
	assert.True(t, accounts.IsUnauthenticated(err))
}

func TestLifecycleDeactivateOnlyFromActivated(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo)

	client := registerClient(t, repo, "client@example.com", "AB123456")

	_, err := lifecycle.Deactivate(context.Background(), accounts.NewPrincipal(client))
	assert.True(t, accounts.IsInvalidTransition(err))
}

func TestLifecycleListFilterAndOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	lifecycle := newTestLifecycle(repo, accounts.WithStateMachineClock(tick))

	manager := seedManager(t, repo, "boss@example.com")
	mp := accounts.NewPrincipal(manager)

	first := registerClient(t, repo, "first@example.com", "P0000001")
	second := registerClient(t, repo, "second@example.com", "P0000002")
	third := registerClient(t, repo, "third@example.com", "P0000003")

	closeAccount := func(id uuid.UUID) {
		activated, err := lifecycle.Activate(ctx, mp, id)
		require.NoError(t, err)
		_, err = lifecycle.Deactivate(ctx, accounts.NewPrincipal(activated))
		require.NoError(t, err)
		_, err = lifecycle.ConfirmDeactivation(ctx, mp, id)
		require.NoError(t, err)
	}

	// closed in reverse creation order
	closeAccount(third.ID)
	closeAccount(first.ID)

	all, err := lifecycle.List(ctx, mp, accounts.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	creating, err := accounts.ParseListFilter("creating")
	require.NoError(t, err)
	list, err := lifecycle.List(ctx, mp, creating)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	closed, err := accounts.ParseListFilter(" Closed ")
	require.NoError(t, err)
	list, err = lifecycle.List(ctx, mp, closed)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	activated, err := accounts.ParseListFilter("activated")
	require.NoError(t, err)
	list, err = lifecycle.List(ctx, mp, activated)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseListFilter(t *testing.T) {
	filter, err := accounts.ParseListFilter("")
	require.NoError(t, err)
	assert.Nil(t, filter.Status)

	_, err = accounts.ParseListFilter("frozen")
	require.Error(t, err)
	assert.True(t, accounts.IsValidationError(err))
	assert.Equal(t, map[string][]string{
		"status": {"Select a valid choice. frozen is not one of the available choices."},
	}, accounts.ValidationErrorsToMap(err))
}

func TestLifecycleStaleCopyIsConcurrentUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	client := registerClient(t, repo, "client@example.com", "AB123456")
	stale, err := repo.Accounts().GetClient(ctx, client.ID)
	require.NoError(t, err)

	sm := accounts.NewAccountStateMachine(repo.Accounts())

	_, err = sm.Transition(ctx, accounts.ActorRef{}, client, accounts.AccountStatusActivated)
	require.NoError(t, err)

	_, err = sm.Transition(ctx, accounts.ActorRef{}, stale, accounts.AccountStatusActivated)
	assert.True(t, accounts.IsConcurrentUpdate(err), "got %v", err)

	stored, err := repo.Accounts().GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, *client.PIN, *stored.PIN)
	assert.Equal(t, int64(2), stored.Version)
}

func TestLifecycleCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo)
	manager := seedManager(t, repo, "boss@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lifecycle.List(ctx, accounts.NewPrincipal(manager), accounts.ListFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestLifecycleActivatePINCollisionIsRetryable(t *testing.T) {
	repo := newTestRepo(t)
	lifecycle := newTestLifecycle(repo, accounts.WithStateMachinePINGenerator(fixedPIN("555555555555555")))
	ctx := context.Background()

	p := accounts.NewPrincipal(seedManager(t, repo, "boss@example.com"))
	first := registerClient(t, repo, "first@example.com", "AA000001")
	second := registerClient(t, repo, "second@example.com", "AA000002")

	_, err := lifecycle.Activate(ctx, p, first.ID)
	require.NoError(t, err)

	_, err = lifecycle.Activate(ctx, p, second.ID)
	require.Error(t, err)
	assert.True(t, accounts.IsPINCollision(err), "got %v", err)

	status, _ := accounts.StatusFromError(err)
	assert.Equal(t, 409, status)

	stored, err := repo.Accounts().GetClient(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusCreating, stored.Status)
	assert.Nil(t, stored.PIN)

	retry := newTestLifecycle(repo)
	activated, err := retry.Activate(ctx, p, second.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusActivated, activated.Status)
}
