package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	TextCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeTerminalState     = "TERMINAL_ACCOUNT_STATE"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from closed.
var ErrTerminalState = goerrors.New("account state is terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// IsInvalidTransition checks for ErrInvalidTransition
func IsInvalidTransition(err error) bool {
	return HasTextCode(err, TextCodeInvalidTransition)
}

// IsTerminalState checks for ErrTerminalState
func IsTerminalState(err error) bool {
	return HasTextCode(err, TextCodeTerminalState)
}

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    AccountStatus
	To      AccountStatus
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StatusChange is the set of columns a transition writes.
type StatusChange struct {
	Status        AccountStatus
	StatusChanged time.Time
	IsActive      bool
	// PIN is only written when non nil
	PIN *string
}

// AccountStatusWriter persists a status change guarded by the record version.
type AccountStatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, change StatusChange) (*Account, error)
}

// AccountStateMachine defines lifecycle operations for accounts.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CanTransition(from, to AccountStatus) bool
	CurrentStatus(account *Account) AccountStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachinePINGenerator overrides how activation PINs are generated.
func WithStateMachinePINGenerator(gen PINGenerator) StateMachineOption {
	return func(sm *accountStateMachine) {
		if gen != nil {
			sm.pins = gen
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the provided writer.
func NewAccountStateMachine(accounts AccountStatusWriter, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusCreating: {
				AccountStatusActivated: {},
			},
			AccountStatusActivated: {
				AccountStatusClosing: {},
			},
			AccountStatusClosing: {
				AccountStatusClosed: {},
			},
		},
		now:              time.Now,
		activitySink:     noopActivitySink{},
		logger:           nopLogger{},
		pins:             NewPINGenerator(DefaultPINLength),
		hookErrorHandler: defaultHookErrorHandler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts         AccountStatusWriter
	transitions      map[AccountStatus]map[AccountStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	pins             PINGenerator
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	from := account.Status
	if _, ok := ParseAccountStatus(string(target)); !ok {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "unknown target status",
		})
	}

	if from == AccountStatusClosed {
		return nil, ErrTerminalState.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := sm.buildTransitionOptions(opts...)

	ctxData := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    from,
		To:      target,
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	change, err := sm.buildStatusChange(account, target)
	if err != nil {
		return nil, err
	}

	updated, err := sm.accounts.UpdateStatus(ctx, account.ID, account.Version, change)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(account, updated, change)

	if err := account.CheckInvariants(); err != nil {
		sm.logger.Error("account invariant violated after transition",
			"account_id", account.ID.String(),
			"from", from,
			"to", target,
			"error", err,
		)
		return nil, err
	}

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	recorder := activityRecorder{sink: sm.activitySink, logger: sm.logger, now: sm.now}
	recorder.record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		Account:    cloneAccount(account),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta),
	})

	return account, nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	return account.Status
}

func (sm *accountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

// buildStatusChange derives the dependent columns from the target status.
// status_changed never moves backwards even if the clock does.
func (sm *accountStateMachine) buildStatusChange(account *Account, target AccountStatus) (StatusChange, error) {
	changedAt := sm.now()
	if account.StatusChanged != nil && changedAt.Before(*account.StatusChanged) {
		changedAt = *account.StatusChanged
	}

	change := StatusChange{
		Status:        target,
		StatusChanged: changedAt,
		IsActive:      target == AccountStatusActivated,
	}

	if target == AccountStatusActivated {
		pin, err := sm.pins.Generate()
		if err != nil {
			return StatusChange{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation pin")
		}
		change.PIN = &pin
	}

	return change, nil
}

func (sm *accountStateMachine) applyUpdates(account, updated *Account, change StatusChange) {
	if updated != nil {
		*account = *updated
		return
	}

	changedAt := change.StatusChanged
	account.Status = change.Status
	account.StatusChanged = &changedAt
	account.IsActive = change.IsActive
	if change.PIN != nil {
		pin := *change.PIN
		account.PIN = &pin
	}
	account.Version++
}

func (sm *accountStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	accountID := ""
	if tc.Account != nil {
		accountID = tc.Account.ID.String()
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "account transition hook failed").
		WithMetadata(map[string]any{
			"phase":      phase,
			"account_id": accountID,
			"from":       tc.From,
			"to":         tc.To,
			"reason":     tc.Meta.Reason,
		})
}
