package accounts

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Lifecycle is the administrative surface over client accounts. Every
// operation checks the caller's capability before it looks anything up.
type Lifecycle struct {
	repo         RepositoryManager
	stateMachine AccountStateMachine
	smOptions    []StateMachineOption
	logger       Logger
}

type LifecycleOption func(*Lifecycle)

// WithLifecycleLogger sets the logger
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLifecycleStateMachine replaces the default state machine
func WithLifecycleStateMachine(sm AccountStateMachine) LifecycleOption {
	return func(l *Lifecycle) {
		l.stateMachine = sm
	}
}

// WithLifecycleStateMachineOptions configures the default state machine
func WithLifecycleStateMachineOptions(opts ...StateMachineOption) LifecycleOption {
	return func(l *Lifecycle) {
		l.smOptions = append(l.smOptions, opts...)
	}
}

func NewLifecycle(repo RepositoryManager, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		repo:   repo,
		logger: defaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.stateMachine == nil {
		smOpts := append([]StateMachineOption{WithStateMachineLogger(l.logger)}, l.smOptions...)
		l.stateMachine = NewAccountStateMachine(repo.Accounts(), smOpts...)
	}

	return l
}

// StateMachine exposes the underlying state machine
func (l *Lifecycle) StateMachine() AccountStateMachine {
	return l.stateMachine
}

// ParseListFilter converts the raw status query value into a filter.
// An empty value lists every status.
func ParseListFilter(raw string) (ListFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ListFilter{}, nil
	}
	status, ok := ParseAccountStatus(raw)
	if !ok {
		return ListFilter{}, FieldError("status",
			fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", raw))
	}
	return ListFilter{Status: &status}, nil
}

// List returns client accounts, optionally filtered by status.
func (l *Lifecycle) List(ctx context.Context, p *Principal, filter ListFilter) ([]*Account, error) {
	if err := checkContext(ctx, "account list"); err != nil {
		return nil, err
	}
	if err := requireManager(p); err != nil {
		return nil, err
	}
	return l.repo.Accounts().ListClients(ctx, filter)
}

// Get returns a single client account.
func (l *Lifecycle) Get(ctx context.Context, p *Principal, id uuid.UUID) (*Account, error) {
	if err := checkContext(ctx, "account retrieve"); err != nil {
		return nil, err
	}
	if err := requireManager(p); err != nil {
		return nil, err
	}
	return l.repo.Accounts().GetClient(ctx, id)
}

// Activate moves a creating account to activated and assigns a fresh PIN.
func (l *Lifecycle) Activate(ctx context.Context, p *Principal, id uuid.UUID) (*Account, error) {
	if err := checkContext(ctx, "account activation"); err != nil {
		return nil, err
	}
	if err := requireManager(p); err != nil {
		return nil, err
	}

	account, err := l.repo.Accounts().GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := l.stateMachine.Transition(ctx, p.Actor(), account, AccountStatusActivated,
		WithTransitionReason("activated by manager"),
	)
	if err != nil {
		l.logger.Warn("account activation failed", "account_id", id.String(), "error", err)
		return nil, err
	}

	l.logger.Info("account activated", "account_id", id.String(), "manager_id", p.Account.ID.String())
	return updated, nil
}

// Deactivate requests closure of the caller's own account. There is no way
// to target another account through this operation.
func (l *Lifecycle) Deactivate(ctx context.Context, p *Principal) (*Account, error) {
	if err := checkContext(ctx, "account deactivation"); err != nil {
		return nil, err
	}
	if err := requireAuthenticated(p); err != nil {
		return nil, err
	}

	account, err := l.repo.Accounts().GetAccount(ctx, p.Account.ID)
	if err != nil {
		return nil, err
	}

	updated, err := l.stateMachine.Transition(ctx, p.Actor(), account, AccountStatusClosing,
		WithTransitionReason("closure requested by owner"),
	)
	if err != nil {
		l.logger.Warn("account deactivation failed", "account_id", account.ID.String(), "error", err)
		return nil, err
	}

	l.logger.Info("account deactivation requested", "account_id", account.ID.String())
	return updated, nil
}

// ConfirmDeactivation closes an account whose owner requested it.
func (l *Lifecycle) ConfirmDeactivation(ctx context.Context, p *Principal, id uuid.UUID) (*Account, error) {
	if err := checkContext(ctx, "account deactivation confirm"); err != nil {
		return nil, err
	}
	if err := requireManager(p); err != nil {
		return nil, err
	}

	account, err := l.repo.Accounts().GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := l.stateMachine.Transition(ctx, p.Actor(), account, AccountStatusClosed,
		WithTransitionReason("closure confirmed by manager"),
	)
	if err != nil {
		l.logger.Warn("account deactivation confirm failed", "account_id", id.String(), "error", err)
		return nil, err
	}

	l.logger.Info("account closed", "account_id", id.String(), "manager_id", p.Account.ID.String())
	return updated, nil
}

func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}
