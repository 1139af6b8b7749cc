package accounts

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle stage of a client account
type AccountStatus string

const (
	// AccountStatusCreating is assigned at registration, waiting for a manager
	AccountStatusCreating AccountStatus = "creating"
	// AccountStatusActivated can log in with its PIN
	AccountStatusActivated AccountStatus = "activated"
	// AccountStatusClosing was requested by the client
	AccountStatusClosing AccountStatus = "closing"
	// AccountStatusClosed was confirmed by a manager, terminal
	AccountStatusClosed AccountStatus = "closed"
)

// AccountStatuses lists every status in lifecycle order.
var AccountStatuses = []AccountStatus{
	AccountStatusCreating,
	AccountStatusActivated,
	AccountStatusClosing,
	AccountStatusClosed,
}

// ParseAccountStatus validates a raw status value.
func ParseAccountStatus(raw string) (AccountStatus, bool) {
	status := AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range AccountStatuses {
		if s == status {
			return s, true
		}
	}
	return "", false
}

func (s AccountStatus) String() string {
	return string(s)
}

// Account is the client account model. Managers share the same table and
// are told apart by IsManager.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email          string        `bun:"email,notnull,unique" json:"email"`
	FirstName      string        `bun:"first_name,notnull" json:"first_name"`
	LastName       string        `bun:"last_name,notnull" json:"last_name"`
	PassportNumber *string       `bun:"passport_number,unique" json:"passport_number"`
	Balance        int64         `bun:"balance,notnull,default:0" json:"balance"`
	PasswordHash   string        `bun:"password_hash" json:"-"`
	PIN            *string       `bun:"pin,unique" json:"-"`
	Status         AccountStatus `bun:"status" json:"status"`
	StatusChanged  *time.Time    `bun:"status_changed,nullzero" json:"status_changed"`
	IsActive       bool          `bun:"is_active,notnull,default:false" json:"is_active"`
	IsManager      bool          `bun:"is_manager,notnull,default:false" json:"is_manager"`
	IsStaff        bool          `bun:"is_staff,notnull,default:false" json:"is_staff"`
	Version        int64         `bun:"version,notnull,default:1" json:"-"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FullName joins first and last name
func (a *Account) FullName() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// HasPIN reports whether a login PIN was assigned
func (a *Account) HasPIN() bool {
	return a != nil && a.PIN != nil && *a.PIN != ""
}

// IsActivated reports whether the account can authenticate
func (a *Account) IsActivated() bool {
	return a != nil && a.Status == AccountStatusActivated
}

// IsClient reports whether the account belongs to the managed client set
func (a *Account) IsClient() bool {
	return a != nil && !a.IsManager
}

// Passport returns the passport number or an empty string
func (a *Account) Passport() string {
	if a == nil || a.PassportNumber == nil {
		return ""
	}
	return *a.PassportNumber
}

// CheckInvariants verifies the status dependent fields agree with each other.
func (a *Account) CheckInvariants() error {
	if a == nil {
		return nil
	}

	switch a.Status {
	case AccountStatusActivated:
		if !a.IsActive || !a.HasPIN() {
			return ErrAccountInvariant.Clone().WithMetadata(map[string]any{
				"id":         a.ID.String(),
				"status":     a.Status,
				"is_active":  a.IsActive,
				"pin_is_set": a.HasPIN(),
			})
		}
	case AccountStatusClosing, AccountStatusClosed:
		if a.IsActive {
			return ErrAccountInvariant.Clone().WithMetadata(map[string]any{
				"id":        a.ID.String(),
				"status":    a.Status,
				"is_active": a.IsActive,
			})
		}
	}
	return nil
}

// ErrAccountInvariant signals an account whose status fields disagree.
var ErrAccountInvariant = goerrors.New("account status fields are inconsistent", goerrors.CategoryInternal).
	WithTextCode("ACCOUNT_INVARIANT_VIOLATION")

// AccountSummary is the public representation returned by the API
type AccountSummary struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Balance        int64         `json:"balance"`
	PassportNumber string        `json:"passport_number"`
	IsStaff        bool          `json:"is_staff"`
	IsManager      bool          `json:"is_manager"`
	IsActive       bool          `json:"is_active"`
	Status         AccountStatus `json:"status"`
	StatusChanged  *time.Time    `json:"status_changed"`
}

// Summary builds the public representation of the account
func (a *Account) Summary() AccountSummary {
	if a == nil {
		return AccountSummary{}
	}
	return AccountSummary{
		ID:             a.ID.String(),
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Balance:        a.Balance,
		PassportNumber: a.Passport(),
		IsStaff:        a.IsStaff,
		IsManager:      a.IsManager,
		IsActive:       a.IsActive,
		Status:         a.Status,
		StatusChanged:  a.StatusChanged,
	}
}

// Summaries maps a list of accounts to their public representation
func Summaries(records []*Account) []AccountSummary {
	out := make([]AccountSummary, 0, len(records))
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out
}

// NormalizeEmail trims the address and lower cases its domain part.
// The local part is kept as typed.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Version == 0 {
		record.Version = 1
	}
	if record.PassportNumber != nil && strings.TrimSpace(*record.PassportNumber) == "" {
		record.PassportNumber = nil
	}
	if record.PIN != nil && *record.PIN == "" {
		record.PIN = nil
	}
}
