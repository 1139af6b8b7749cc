package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/repository"
)

// MockAccountStatusWriter implements accounts.AccountStatusWriter
type MockAccountStatusWriter struct {
	mock.Mock
}

func (m *MockAccountStatusWriter) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, change accounts.StatusChange) (*accounts.Account, error) {
	args := m.Called(ctx, id, expectedVersion, change)
	var out *accounts.Account
	if v := args.Get(0); v != nil {
		out = v.(*accounts.Account)
	}
	return out, args.Error(1)
}

// recordingLogger keeps formatted log lines for assertions
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprint(level, " ", msg, " ", args)))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

func (l *recordingLogger) Contains(fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

// eventRecorder is an ActivitySink that keeps every event
type eventRecorder struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, event accounts.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(t accounts.ActivityEventType) []accounts.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounts.ActivityEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type testConfig struct {
	key      string
	method   string
	issuer   string
	audience []string
}

func (c testConfig) GetSigningKey() string    { return c.key }
func (c testConfig) GetSigningMethod() string { return c.method }
func (c testConfig) GetContextKey() string    { return "user" }
func (c testConfig) GetTokenExpiration() int  { return 1 }
func (c testConfig) GetTokenLookup() string   { return "header:Authorization" }
func (c testConfig) GetAuthScheme() string    { return "Bearer" }
func (c testConfig) GetIssuer() string        { return c.issuer }
func (c testConfig) GetAudience() []string    { return c.audience }

func newTestConfig() testConfig {
	return testConfig{key: "test-signing-key", method: "HS256", issuer: "accounts-test"}
}

func newTestRepo(t *testing.T) accounts.RepositoryManager {
	t.Helper()
	conn, err := repository.Connect(context.Background(), repository.Options{
		Driver: repository.DriverSQLite,
		DSN:    ":memory:",
	}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn.Repo
}

var pinCounter struct {
	mu sync.Mutex
	n  int
}

func nextPIN() string {
	pinCounter.mu.Lock()
	defer pinCounter.mu.Unlock()
	pinCounter.n++
	return fmt.Sprintf("9%014d", pinCounter.n)
}

// seedManager inserts an activated manager without going through bcrypt
func seedManager(t *testing.T, repo accounts.RepositoryManager, email string) *accounts.Account {
	t.Helper()
	pin := nextPIN()
	now := time.Now()
	manager, err := repo.Accounts().Register(context.Background(), &accounts.Account{
		Email:         email,
		FirstName:     "Mia",
		LastName:      "Manager",
		PIN:           &pin,
		Status:        accounts.AccountStatusActivated,
		StatusChanged: &now,
		IsActive:      true,
		IsManager:     true,
		IsStaff:       true,
	})
	require.NoError(t, err)
	return manager
}

func registerClient(t *testing.T, repo accounts.RepositoryManager, email, passport string, opts ...accounts.RegisterAccountOption) *accounts.Account {
	t.Helper()
	opts = append([]accounts.RegisterAccountOption{accounts.WithRegisterLogger(&recordingLogger{})}, opts...)
	handler := accounts.NewRegisterAccountHandler(repo, opts...)
	account, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
		Email:          email,
		PassportNumber: passport,
		FirstName:      "Ann",
		LastName:       "Lee",
	})
	require.NoError(t, err)
	return account
}

func newTestLifecycle(repo accounts.RepositoryManager, smOpts ...accounts.StateMachineOption) *accounts.Lifecycle {
	return accounts.NewLifecycle(repo,
		accounts.WithLifecycleLogger(&recordingLogger{}),
		accounts.WithLifecycleStateMachineOptions(smOpts...),
	)
}
