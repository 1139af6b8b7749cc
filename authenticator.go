package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token   string   `json:"token"`
	Account *Account `json:"-"`
}

// Authenticator turns verified credentials into access tokens and access
// tokens back into principals.
type Authenticator struct {
	accounts Accounts
	verifier *CredentialVerifier
	tokens   TokenService
	sink     ActivitySink
	logger   Logger
	now      func() time.Time
}

type AuthenticatorOption func(*Authenticator)

func WithAuthenticatorActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.sink = normalizeActivitySink(sink)
	}
}

func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthenticator(accounts Accounts, tokens TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		accounts: accounts,
		tokens:   tokens,
		sink:     noopActivitySink{},
		logger:   defaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.verifier = NewCredentialVerifier(accounts, a.logger)
	return a
}

// Verifier exposes the credential verifier
func (a *Authenticator) Verifier() *CredentialVerifier {
	return a.verifier
}

// LoginWithPIN authenticates a client by PIN and issues a token.
func (a *Authenticator) LoginWithPIN(ctx context.Context, pin string) (*LoginResult, error) {
	account, err := a.verifier.AuthenticateByPIN(ctx, pin)
	if err != nil {
		a.recordFailure(ctx, "pin", err)
		return nil, err
	}
	return a.issue(ctx, account, "pin")
}

// LoginWithPassword authenticates a manager by email and password.
func (a *Authenticator) LoginWithPassword(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := a.verifier.AuthenticateByPassword(ctx, email, password)
	if err != nil {
		a.recordFailure(ctx, "password", err)
		return nil, err
	}
	return a.issue(ctx, account, "password")
}

func (a *Authenticator) issue(ctx context.Context, account *Account, method string) (*LoginResult, error) {
	token, err := a.tokens.Generate(account)
	if err != nil {
		a.logger.Error("token generation failed", "account_id", account.ID.String(), "error", err)
		return nil, err
	}

	recorder := activityRecorder{sink: a.sink, logger: a.logger, now: a.now}
	recorder.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     NewPrincipal(account).Actor(),
		AccountID: account.ID.String(),
		Metadata:  map[string]any{"method": method},
	})

	return &LoginResult{Token: token, Account: account}, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, method string, err error) {
	if IsValidationError(err) {
		return
	}
	recorder := activityRecorder{sink: a.sink, logger: a.logger, now: a.now}
	recorder.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: ActorTypeAnonymous},
		Metadata: map[string]any{
			"method": method,
			"error":  err.Error(),
		},
	})
}

// PrincipalFromToken validates the token and loads the current state of
// the account it was issued to. Inactive accounts are not authenticated.
func (a *Authenticator) PrincipalFromToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	return a.PrincipalFromClaims(ctx, claims)
}

// PrincipalFromClaims loads the account referenced by already validated claims
func (a *Authenticator) PrincipalFromClaims(ctx context.Context, claims AuthClaims) (*Principal, error) {
	if claims == nil {
		return nil, ErrUnauthenticated.Clone()
	}

	id, err := uuid.Parse(claims.AccountID())
	if err != nil {
		return nil, ErrTokenMalformed.Clone()
	}

	account, err := a.accounts.GetAccount(ctx, id)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrUnauthenticated.Clone().WithMetadata(map[string]any{"reason": "account not found"})
		}
		return nil, err
	}

	if !account.IsActive {
		return nil, ErrUnauthenticated.Clone().WithMetadata(map[string]any{"reason": "account inactive"})
	}

	return NewPrincipal(account), nil
}
