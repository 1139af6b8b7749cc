package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type CreateManagerMessage struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	IsStaff   bool   `json:"is_staff"`
}

func (e CreateManagerMessage) Type() string { return "account.manager.create" }

func (e CreateManagerMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&e.FirstName, validation.Length(0, 30)),
		validation.Field(&e.LastName, validation.Length(0, 30)),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// CreateManagerHandler bootstraps manager accounts. Managers skip the
// registration workflow, they are activated on creation and log in with a
// password.
type CreateManagerHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

type CreateManagerOption func(*CreateManagerHandler)

func WithCreateManagerActivitySink(sink ActivitySink) CreateManagerOption {
	return func(h *CreateManagerHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

func WithCreateManagerLogger(logger Logger) CreateManagerOption {
	return func(h *CreateManagerHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewCreateManagerHandler(repo RepositoryManager, opts ...CreateManagerOption) *CreateManagerHandler {
	h := &CreateManagerHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *CreateManagerHandler) Execute(ctx context.Context, event CreateManagerMessage) error {
	_, err := h.Create(ctx, event)
	return err
}

func (h *CreateManagerHandler) Create(ctx context.Context, event CreateManagerMessage) (*Account, error) {
	if err := checkContext(ctx, "manager creation"); err != nil {
		return nil, err
	}

	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	pin, err := GeneratePIN(DefaultPINLength)
	if err != nil {
		return nil, err
	}

	now := h.now()
	account := &Account{
		Email:         event.Email,
		FirstName:     event.FirstName,
		LastName:      event.LastName,
		PasswordHash:  hash,
		PIN:           &pin,
		Status:        AccountStatusActivated,
		StatusChanged: &now,
		IsActive:      true,
		IsManager:     true,
		IsStaff:       event.IsStaff,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Accounts().EmailTakenTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}
		if taken {
			return FieldError("email", msgEmailTaken)
		}

		created, err := h.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			return translateIntegrityError(err)
		}
		if created != nil {
			account = created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("manager account created", "account_id", account.ID.String(), "email", account.Email)

	recorder := activityRecorder{sink: h.sink, logger: h.logger, now: h.now}
	recorder.record(ctx, ActivityEvent{
		EventType: ActivityEventManagerCreated,
		Actor:     ActorRef{Type: ActorTypeSystem},
		Account:   cloneAccount(account),
		ToStatus:  AccountStatusActivated,
	})

	return account, nil
}
