package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

const (
	msgFieldRequired = "This field is required."
	msgInvalidEmail  = "Enter a valid email address."
)

type RegisterAccountMessage struct {
	Email          string `json:"email"`
	PassportNumber string `json:"passport_number"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	UseHashid      bool   `json:"-"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Normalize trims every field and lower cases the email domain
func (e RegisterAccountMessage) Normalize() RegisterAccountMessage {
	e.Email = NormalizeEmail(e.Email)
	e.PassportNumber = strings.TrimSpace(e.PassportNumber)
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	return e
}

func (e RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email,
			validation.Required.Error(msgFieldRequired),
			validation.Length(3, 254),
			is.Email.Error(msgInvalidEmail),
		),
		validation.Field(&e.PassportNumber,
			validation.Required.Error(msgFieldRequired),
			validation.Length(1, 8).Error("Ensure this field has no more than 8 characters."),
		),
		validation.Field(&e.FirstName,
			validation.Required.Error(msgFieldRequired),
			validation.Length(1, 30).Error("Ensure this field has no more than 30 characters."),
		),
		validation.Field(&e.LastName,
			validation.Required.Error(msgFieldRequired),
			validation.Length(1, 30).Error("Ensure this field has no more than 30 characters."),
		),
	)
}

type RegisterAccountHandler struct {
	repo    RepositoryManager
	sink    ActivitySink
	logger  Logger
	now     func() time.Time
	timeout time.Duration
}

type RegisterAccountOption func(*RegisterAccountHandler)

// WithRegisterActivitySink sets the sink notified after a successful registration
func WithRegisterActivitySink(sink ActivitySink) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

func WithRegisterLogger(logger Logger) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithRegisterClock(clock func() time.Time) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithRegisterTimeout bounds the registration transaction
func WithRegisterTimeout(timeout time.Duration) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

func NewRegisterAccountHandler(repo RepositoryManager, opts ...RegisterAccountOption) *RegisterAccountHandler {
	h := &RegisterAccountHandler{
		repo:    repo,
		sink:    noopActivitySink{},
		logger:  defaultLogger(),
		now:     time.Now,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	_, err := h.Register(ctx, event)
	return err
}

// Register validates the request and creates the account in creating state.
// Uniqueness failures, including the ones only the storage layer catches,
// come back as validation.Errors.
func (h *RegisterAccountHandler) Register(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.register(ctx, event)
	}
}

func (h *RegisterAccountHandler) register(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	passport := event.PassportNumber
	account := &Account{
		Email:          event.Email,
		FirstName:      event.FirstName,
		LastName:       event.LastName,
		PassportNumber: &passport,
		Status:         AccountStatusCreating,
		IsActive:       false,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			account.ID = id
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		accounts := h.repo.Accounts()

		taken, err := accounts.EmailTakenTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}
		if taken {
			return FieldError("email", msgEmailTaken)
		}

		taken, err = accounts.PassportTakenTx(ctx, tx, event.PassportNumber)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check passport uniqueness")
		}
		if taken {
			return FieldError(NonFieldErrorsKey, msgPassportTaken)
		}

		created, err := accounts.CreateTx(ctx, tx, account)
		if err != nil {
			return translateIntegrityError(err)
		}
		if created != nil {
			account = created
		}
		return nil
	})

	if err != nil {
		if IsValidationError(err) {
			return nil, err
		}
		if translated := translateIntegrityError(err); IsValidationError(translated) {
			return nil, translated
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.logger.Info("account registered", "account_id", account.ID.String())

	recorder := activityRecorder{sink: h.sink, logger: h.logger, now: h.now}
	recorder.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{Type: ActorTypeAnonymous},
		AccountID: account.ID.String(),
		Account:   cloneAccount(account),
		ToStatus:  AccountStatusCreating,
	})

	return account, nil
}

// translateIntegrityError maps unique constraint violations onto the same
// messages the pre-insert checks produce.
func translateIntegrityError(err error) error {
	column, ok := uniqueViolationColumn(err)
	if !ok {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
	}

	switch column {
	case "email":
		return FieldError("email", msgEmailTaken)
	case "passport_number":
		return FieldError(NonFieldErrorsKey, msgPassportTaken)
	default:
		return FieldError(NonFieldErrorsKey, "A user with these details already exists.")
	}
}
