package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	ts := accounts.NewTokenService([]byte("secret"), 2, "accounts-test", jwt.ClaimStrings{"api"}, nil)
	account := &accounts.Account{ID: uuid.New(), IsManager: true}

	token, err := ts.Generate(account)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.Subject())
	assert.Equal(t, account.ID.String(), claims.AccountID())
	assert.True(t, claims.IsManager())
	assert.WithinDuration(t, claims.IssuedAt().Add(2*time.Hour), claims.Expires(), time.Second)
}

func TestTokenServiceGenerateRequiresAccount(t *testing.T) {
	ts := accounts.NewTokenService([]byte("secret"), 1, "", nil, nil)
	_, err := ts.Generate(nil)
	assert.Error(t, err)
}

func TestTokenServiceRejectsExpiredTokens(t *testing.T) {
	ts := accounts.NewTokenService([]byte("secret"), 1, "accounts-test", nil, nil)
	past := time.Now().Add(-2 * time.Hour)

	token, err := ts.SignClaims(&accounts.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "accounts-test",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	_, err = ts.Validate(token)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeTokenExpired), "got %v", err)
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	ours := accounts.NewTokenService([]byte("secret"), 1, "accounts-test", jwt.ClaimStrings{"api"}, nil)
	account := &accounts.Account{ID: uuid.New()}

	tests := []struct {
		name   string
		issuer *accounts.TokenServiceImpl
	}{
		{"wrong key", accounts.NewTokenService([]byte("other"), 1, "accounts-test", jwt.ClaimStrings{"api"}, nil)},
		{"wrong issuer", accounts.NewTokenService([]byte("secret"), 1, "someone-else", jwt.ClaimStrings{"api"}, nil)},
		{"wrong audience", accounts.NewTokenService([]byte("secret"), 1, "accounts-test", jwt.ClaimStrings{"web"}, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.issuer.Generate(account)
			require.NoError(t, err)

			_, err = ours.Validate(token)
			assert.True(t, accounts.HasTextCode(err, accounts.TextCodeTokenMalformed), "got %v", err)
		})
	}
}

func TestTokenServiceRejectsUnexpectedSigningMethod(t *testing.T) {
	ts := accounts.NewTokenService([]byte("secret"), 1, "", nil, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: uuid.NewString()})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.Validate(raw)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeTokenMalformed))
}

func TestTokenServiceSigningMethodFromConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.method = "HS512"
	ts := accounts.NewTokenServiceFromConfig(cfg, &recordingLogger{})
	assert.Equal(t, "HS512", ts.SigningMethod())

	account := &accounts.Account{ID: uuid.New()}
	token, err := ts.Generate(account)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &accounts.JWTClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS512", parsed.Method.Alg())

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.AccountID())

	cfg.method = "HS256"
	hs256 := accounts.NewTokenServiceFromConfig(cfg, &recordingLogger{})
	_, err = hs256.Validate(token)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeTokenMalformed), "same key, other algorithm: %v", err)
}

func TestTokenServiceIgnoresNonHMACSigningMethod(t *testing.T) {
	logger := &recordingLogger{}
	for _, alg := range []string{"RS256", "none", "bogus"} {
		ts := accounts.NewTokenService([]byte("secret"), 1, "", nil, logger).WithSigningMethod(alg)
		assert.Equal(t, "HS256", ts.SigningMethod(), alg)
	}
	assert.True(t, logger.Contains("unsupported token signing method"))

	ts := accounts.NewTokenService([]byte("secret"), 1, "", nil, nil).WithSigningMethod("")
	assert.Equal(t, "HS256", ts.SigningMethod())
}
