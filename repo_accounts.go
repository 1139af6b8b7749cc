package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// ListFilter narrows the client listing
type ListFilter struct {
	Status *AccountStatus
}

type Accounts interface {
	repository.Repository[*Account]
	AccountStatusWriter

	Register(ctx context.Context, record *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	GetClient(ctx context.Context, id uuid.UUID) (*Account, error)
	GetClientTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetByPIN(ctx context.Context, pin string) (*Account, error)

	EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	PassportTakenTx(ctx context.Context, tx bun.IDB, passport string) (bool, error)

	ListClients(ctx context.Context, filter ListFilter) ([]*Account, error)
	CountByStatus(ctx context.Context, status AccountStatus) (int, error)
	ManagerEmails(ctx context.Context) ([]string, error)

	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expectedVersion int64, change StatusChange) (*Account, error)
}

type accountsRepo struct {
	repository.Repository[*Account]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ AccountStatusWriter             = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

type AccountsOption func(*accountsRepo)

// WithAccountsClock sets the clock used for created_at/updated_at.
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(r *accountsRepo) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	r := &accountsRepo{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *accountsRepo) Register(ctx context.Context, record *Account) (*Account, error) {
	return r.RegisterTx(ctx, r.db, record)
}

func (r *accountsRepo) RegisterTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	return r.CreateTx(ctx, tx, record)
}

func (r *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	now := r.now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *accountsRepo) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.getOne(ctx, r.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	}, map[string]any{"id": id.String()})
}

func (r *accountsRepo) GetClient(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.GetClientTx(ctx, r.db, id)
}

// GetClientTx loads a non manager account. Manager accounts are reported
// as not found.
func (r *accountsRepo) GetClientTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	return r.getOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.id = ?", id).
			Where("?TableAlias.is_manager = ?", false)
	}, map[string]any{"id": id.String()})
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *accountsRepo) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	email = NormalizeEmail(email)
	return r.getOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.email = ?", email)
	}, map[string]any{"email": email})
}

// GetByPIN matches the PIN exactly, including case.
func (r *accountsRepo) GetByPIN(ctx context.Context, pin string) (*Account, error) {
	return r.getOne(ctx, r.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.pin = ?", pin)
	}, nil)
}

func (r *accountsRepo) getOne(ctx context.Context, tx bun.IDB, where func(*bun.SelectQuery) *bun.SelectQuery, meta map[string]any) (*Account, error) {
	record := &Account{}
	err := where(tx.NewSelect().Model(record)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound.Clone().WithMetadata(meta)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}
	return record, nil
}

func (r *accountsRepo) EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Exists(ctx)
}

func (r *accountsRepo) PassportTakenTx(ctx context.Context, tx bun.IDB, passport string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.passport_number = ?", strings.TrimSpace(passport)).
		Exists(ctx)
}

// ListClients returns non manager accounts. Closed accounts are ordered by
// the time they were closed, every other listing by creation order.
func (r *accountsRepo) ListClients(ctx context.Context, filter ListFilter) ([]*Account, error) {
	records := []*Account{}
	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.is_manager = ?", false)

	if filter.Status != nil {
		q = q.Where("?TableAlias.status = ?", *filter.Status)
	}

	if filter.Status != nil && *filter.Status == AccountStatusClosed {
		q = q.OrderExpr("?TableAlias.status_changed ASC")
	} else {
		q = q.OrderExpr("?TableAlias.created_at ASC")
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return records, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	return records, nil
}

func (r *accountsRepo) CountByStatus(ctx context.Context, status AccountStatus) (int, error) {
	n, err := r.db.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.is_manager = ?", false).
		Where("?TableAlias.status = ?", status).
		Count(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count accounts")
	}
	return n, nil
}

func (r *accountsRepo) ManagerEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.db.NewSelect().
		Model((*Account)(nil)).
		Column("email").
		Where("?TableAlias.is_manager = ?", true).
		OrderExpr("?TableAlias.email ASC").
		Scan(ctx, &emails)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load manager emails")
	}
	return emails, nil
}

func (r *accountsRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, change StatusChange) (*Account, error) {
	return r.UpdateStatusTx(ctx, r.db, id, expectedVersion, change)
}

// UpdateStatusTx writes the change only if the stored version still equals
// expectedVersion, bumping it on success.
func (r *accountsRepo) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expectedVersion int64, change StatusChange) (*Account, error) {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("status = ?", change.Status).
		Set("status_changed = ?", change.StatusChanged).
		Set("is_active = ?", change.IsActive).
		Set("version = version + 1").
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("version = ?", expectedVersion)

	if change.PIN != nil {
		q = q.Set("pin = ?", *change.PIN)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, statusWriteError(err, id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account status")
	}

	if affected == 0 {
		if _, err := r.getOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.id = ?", id)
		}, map[string]any{"id": id.String()}); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentUpdate.Clone().WithMetadata(map[string]any{
			"id":      id.String(),
			"version": expectedVersion,
		})
	}

	return r.getOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	}, map[string]any{"id": id.String()})
}

func statusWriteError(err error, id uuid.UUID) error {
	column, ok := uniqueViolationColumn(err)
	if !ok {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account status")
	}
	if column == "pin" {
		return ErrPINCollision.Clone().WithMetadata(map[string]any{"id": id.String()})
	}
	return goerrors.Wrap(err, goerrors.CategoryConflict, "account update violates a unique constraint").
		WithTextCode(TextCodeConcurrentUpdate).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"id": id.String(), "column": column})
}

// uniqueViolationColumn reports which unique column a storage error refers
// to. It understands PostgreSQL (pgx) and SQLite error shapes.
func uniqueViolationColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return "", false
		}
		return matchUniqueColumn(pgErr.ConstraintName + " " + pgErr.Detail), true
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key value violates unique constraint") {
			return matchUniqueColumn(msg), true
		}
	}
	return "", false
}

func matchUniqueColumn(s string) string {
	for _, column := range []string{"passport_number", "email", "pin"} {
		if strings.Contains(s, column) {
			return column
		}
	}
	return ""
}
