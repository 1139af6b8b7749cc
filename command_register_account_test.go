package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	accounts "github.com/goliatone/go-accounts"
)

func TestRegisterAccountCreatesPendingAccount(t *testing.T) {
	repo := newTestRepo(t)
	sink := &eventRecorder{}

	handler := accounts.NewRegisterAccountHandler(repo,
		accounts.WithRegisterActivitySink(sink),
		accounts.WithRegisterLogger(&recordingLogger{}),
	)

	account, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
		Email:          "  ann.lee@Example.COM ",
		PassportNumber: " AB123456 ",
		FirstName:      " Ann ",
		LastName:       "Lee",
	})
	require.NoError(t, err)

	assert.Equal(t, "ann.lee@example.com", account.Email)
	assert.Equal(t, "AB123456", account.Passport())
	assert.Equal(t, "Ann", account.FirstName)
	assert.Equal(t, accounts.AccountStatusCreating, account.Status)
	assert.False(t, account.IsActive)
	assert.False(t, account.IsManager)
	assert.Nil(t, account.PIN)
	assert.Zero(t, account.Balance)

	stored, err := repo.Accounts().GetByEmail(context.Background(), "ann.lee@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)

	events := sink.ofType(accounts.ActivityEventAccountRegistered)
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActorTypeAnonymous, events[0].Actor.Type)
	assert.Equal(t, account.ID.String(), events[0].AccountID)
	require.NotNil(t, events[0].Account)
	assert.Equal(t, "Ann", events[0].Account.FirstName)
}

func TestRegisterAccountValidation(t *testing.T) {
	repo := newTestRepo(t)
	handler := accounts.NewRegisterAccountHandler(repo, accounts.WithRegisterLogger(&recordingLogger{}))

	tests := []struct {
		name     string
		msg      accounts.RegisterAccountMessage
		expected map[string][]string
	}{
		{
			name: "all fields missing",
			msg:  accounts.RegisterAccountMessage{},
			expected: map[string][]string{
				"email":           {"This field is required."},
				"first_name":      {"This field is required."},
				"last_name":       {"This field is required."},
				"passport_number": {"This field is required."},
			},
		},
		{
			name: "invalid email",
			msg: accounts.RegisterAccountMessage{
				Email:          "not-an-email",
				PassportNumber: "AB123456",
				FirstName:      "Ann",
				LastName:       "Lee",
			},
			expected: map[string][]string{
				"email": {"Enter a valid email address."},
			},
		},
		{
			name: "field lengths",
			msg: accounts.RegisterAccountMessage{
				Email:          "ann@example.com",
				PassportNumber: "AB1234567",
				FirstName:      strings.Repeat("a", 31),
				LastName:       "Lee",
			},
			expected: map[string][]string{
				"passport_number": {"Ensure this field has no more than 8 characters."},
				"first_name":      {"Ensure this field has no more than 30 characters."},
			},
		},
		{
			name: "whitespace only",
			msg: accounts.RegisterAccountMessage{
				Email:          "ann@example.com",
				PassportNumber: "   ",
				FirstName:      "Ann",
				LastName:       "  ",
			},
			expected: map[string][]string{
				"passport_number": {"This field is required."},
				"last_name":       {"This field is required."},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Register(context.Background(), tt.msg)
			require.Error(t, err)
			assert.True(t, accounts.IsValidationError(err))
			assert.Equal(t, tt.expected, accounts.ValidationErrorsToMap(err))
		})
	}

	list, err := repo.Accounts().ListClients(context.Background(), accounts.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegisterAccountDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	registerClient(t, repo, "ann@example.com", "AB123456")

	handler := accounts.NewRegisterAccountHandler(repo, accounts.WithRegisterLogger(&recordingLogger{}))
	_, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
		Email:          "ann@EXAMPLE.com",
		PassportNumber: "ZZ000000",
		FirstName:      "Ann",
		LastName:       "Lee",
	})

	require.Error(t, err)
	assert.Equal(t, map[string][]string{
		"email": {"A user is already registered with this e-mail address."},
	}, accounts.ValidationErrorsToMap(err))
}

func TestRegisterAccountDuplicatePassport(t *testing.T) {
	repo := newTestRepo(t)
	registerClient(t, repo, "ann@example.com", "AB123456")

	handler := accounts.NewRegisterAccountHandler(repo, accounts.WithRegisterLogger(&recordingLogger{}))
	_, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
		Email:          "bob@example.com",
		PassportNumber: "AB123456",
		FirstName:      "Bob",
		LastName:       "Ray",
	})

	require.Error(t, err)
	assert.Equal(t, map[string][]string{
		accounts.NonFieldErrorsKey: {"A user is already registered with this passport number address."},
	}, accounts.ValidationErrorsToMap(err))
}

// uncheckedRepo hides existing rows from the pre-insert uniqueness checks,
// the way two registrations racing past them would see the table.
type uncheckedRepo struct {
	accounts.RepositoryManager
}

func (r uncheckedRepo) Accounts() accounts.Accounts {
	return uncheckedAccounts{Accounts: r.RepositoryManager.Accounts()}
}

type uncheckedAccounts struct {
	accounts.Accounts
}

func (uncheckedAccounts) EmailTakenTx(context.Context, bun.IDB, string) (bool, error) {
	return false, nil
}

func (uncheckedAccounts) PassportTakenTx(context.Context, bun.IDB, string) (bool, error) {
	return false, nil
}

func TestRegisterAccountStorageConstraintTranslation(t *testing.T) {
	tests := []struct {
		name   string
		second accounts.RegisterAccountMessage
		want   map[string][]string
	}{
		{
			name: "email",
			second: accounts.RegisterAccountMessage{
				Email:          "ann@example.com",
				PassportNumber: "ZZ000000",
				FirstName:      "Ann",
				LastName:       "Other",
			},
			want: map[string][]string{
				"email": {"A user is already registered with this e-mail address."},
			},
		},
		{
			name: "passport",
			second: accounts.RegisterAccountMessage{
				Email:          "bob@example.com",
				PassportNumber: "AB123456",
				FirstName:      "Bob",
				LastName:       "Ray",
			},
			want: map[string][]string{
				accounts.NonFieldErrorsKey: {"A user is already registered with this passport number address."},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			registerClient(t, repo, "ann@example.com", "AB123456")

			handler := accounts.NewRegisterAccountHandler(uncheckedRepo{RepositoryManager: repo},
				accounts.WithRegisterLogger(&recordingLogger{}),
			)
			_, err := handler.Register(context.Background(), tt.second)

			require.Error(t, err)
			assert.True(t, accounts.IsValidationError(err), "got %v", err)
			assert.Equal(t, tt.want, accounts.ValidationErrorsToMap(err))

			n, err := repo.Accounts().CountByStatus(context.Background(), accounts.AccountStatusCreating)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestAccountsRegisterRejectsDuplicateRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	passport := "AB123456"
	_, err := repo.Accounts().Register(ctx, &accounts.Account{
		Email:          "ann@example.com",
		PassportNumber: &passport,
		Status:         accounts.AccountStatusCreating,
	})
	require.NoError(t, err)

	other := "ZZ000000"
	_, err = repo.Accounts().Register(ctx, &accounts.Account{
		Email:          "ann@example.com",
		PassportNumber: &other,
		Status:         accounts.AccountStatusCreating,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")

	_, err = repo.Accounts().Register(ctx, &accounts.Account{
		Email:          "bob@example.com",
		PassportNumber: &passport,
		Status:         accounts.AccountStatusCreating,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passport_number")
}

func TestRegisterAccountConcurrentDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	handler := accounts.NewRegisterAccountHandler(repo, accounts.WithRegisterLogger(&recordingLogger{}))

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		errs    []error
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := handler.Register(context.Background(), accounts.RegisterAccountMessage{
				Email:          "race@example.com",
				PassportNumber: fmt.Sprintf("RC%06d", i),
				FirstName:      "Race",
				LastName:       "Condition",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	require.Len(t, errs, attempts-1)
	for _, err := range errs {
		assert.Equal(t, map[string][]string{
			"email": {"A user is already registered with this e-mail address."},
		}, accounts.ValidationErrorsToMap(err))
	}
}

func TestRegisterAccountCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	handler := accounts.NewRegisterAccountHandler(repo, accounts.WithRegisterLogger(&recordingLogger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := handler.Register(ctx, accounts.RegisterAccountMessage{
		Email:          "ann@example.com",
		PassportNumber: "AB123456",
		FirstName:      "Ann",
		LastName:       "Lee",
	})
	require.Error(t, err)
	assert.False(t, accounts.IsValidationError(err))
}
