package accounts

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// PINLoginPayload is the body of a PIN login request
type PINLoginPayload struct {
	PIN string `json:"pin"`
}

func (p PINLoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PIN, validation.Required.Error(`Must include "pin".`)),
	)
}

// PasswordLoginPayload is the body of a password login request
type PasswordLoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p PasswordLoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required.Error(msgFieldRequired)),
		validation.Field(&p.Password, validation.Required.Error(msgFieldRequired)),
	)
}

// CredentialVerifier resolves credentials to accounts.
type CredentialVerifier struct {
	accounts Accounts
	logger   Logger
}

func NewCredentialVerifier(accounts Accounts, logger Logger) *CredentialVerifier {
	if logger == nil {
		logger = defaultLogger()
	}
	return &CredentialVerifier{accounts: accounts, logger: logger}
}

// AuthenticateByPIN looks the PIN up by exact equality. An unknown PIN is a
// not found error, which callers must keep distinct from a malformed request.
// A matching account that is not activated is refused with a generic error.
func (v *CredentialVerifier) AuthenticateByPIN(ctx context.Context, pin string) (*Account, error) {
	if err := (PINLoginPayload{PIN: pin}).Validate(); err != nil {
		return nil, err
	}

	// stored PINs are digits only, nothing else can match
	if !IsWellFormedPIN(pin, 0) {
		v.logger.Debug("pin login with malformed pin", "length", len(pin))
		return nil, ErrPINNotFound.Clone()
	}

	account, err := v.accounts.GetByPIN(ctx, pin)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrPINNotFound.Clone()
		}
		return nil, err
	}

	if !account.IsActivated() || !account.IsActive {
		v.logger.Info("pin login refused for inactive account",
			"account_id", account.ID.String(),
			"status", account.Status,
		)
		return nil, ErrAccountNotActivated.Clone()
	}

	return account, nil
}

// AuthenticateByPassword verifies a bcrypt password. Only accounts with a
// password hash, which are the bootstrapped managers, can succeed.
func (v *CredentialVerifier) AuthenticateByPassword(ctx context.Context, email, password string) (*Account, error) {
	payload := PasswordLoginPayload{Email: strings.TrimSpace(email), Password: password}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	account, err := v.accounts.GetByEmail(ctx, payload.Email)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrInvalidCredentials.Clone()
		}
		return nil, err
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		v.logger.Info("password login mismatch", "account_id", account.ID.String())
		return nil, ErrInvalidCredentials.Clone()
	}

	if !account.IsActive {
		return nil, ErrAccountNotActivated.Clone()
	}

	return account, nil
}
