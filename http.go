package accounts

import (
	"context"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-accounts/middleware/jwtware"
)

// PrincipalLocalsKey is where the middleware stores the resolved principal
const PrincipalLocalsKey = "principal"

type tokenValidatorAdapter struct {
	tokens TokenService
}

func (v tokenValidatorAdapter) Validate(token string) (jwtware.AuthClaims, error) {
	claims, err := v.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware authenticates bearer tokens and resolves the principal for the
// request. With optional set, requests without a token continue as anonymous.
func (a *Authenticator) Middleware(cfg Config, optional bool) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		TokenValidator: tokenValidatorAdapter{tokens: a.tokens},
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		AuthScheme:     cfg.GetAuthScheme(),
		Optional:       optional,
		ErrorHandler: func(c router.Context, err error) error {
			a.logger.Debug("request authentication failed", "path", c.Path(), "error", err)
			return ErrorResponse(c, asAuthError(err), a.logger)
		},
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
		ValidationListeners: []jwtware.ValidationListener{
			func(c router.Context, claims jwtware.AuthClaims) error {
				ac, ok := claims.(AuthClaims)
				if !ok {
					return ErrTokenMalformed.Clone()
				}
				p, err := a.PrincipalFromClaims(c.Context(), ac)
				if err != nil {
					return err
				}
				c.Locals(PrincipalLocalsKey, p)
				c.SetContext(WithPrincipal(c.Context(), p))
				return nil
			},
		},
	})
}

// RequestPrincipal returns the principal resolved by the middleware or nil
func RequestPrincipal(c router.Context) *Principal {
	if p, ok := c.Locals(PrincipalLocalsKey).(*Principal); ok {
		return p
	}
	if p, ok := PrincipalFromContext(c.Context()); ok {
		return p
	}
	return nil
}

func asAuthError(err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return ErrUnauthenticated.Clone()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
		WithTextCode(TextCodeTokenMalformed).
		WithCode(goerrors.CodeUnauthorized)
}

// ErrorResponse writes err using the API error shapes:
// {"field": ["message"]} for validation, {"detail": "..."} otherwise.
func ErrorResponse(c router.Context, err error, logger Logger) error {
	logger = normalizeLogger(logger)

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusBadRequest, ValidationErrorsToMap(verrs))
	}

	status, detail := StatusFromError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "method", c.Method(), "error", err)
	}

	body := map[string]any{"detail": detail}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" && status < http.StatusInternalServerError {
		body["code"] = richErr.TextCode
	}
	return c.JSON(status, body)
}

// StatusFromError maps domain errors onto HTTP status codes and the detail
// message safe to show to the caller.
func StatusFromError(err error) (int, string) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError, "Internal server error."
	}

	switch richErr.TextCode {
	case TextCodeForbidden, TextCodeAccountInactive:
		return http.StatusForbidden, msgForbidden
	case TextCodeUnauthenticated, TextCodeTokenExpired, TextCodeTokenMalformed, TextCodeInvalidCredentials:
		return http.StatusUnauthorized, richErr.Message
	case TextCodePINNotFound:
		return http.StatusNotFound, msgPINNotFound
	}

	switch richErr.Category {
	case goerrors.CategoryNotFound:
		return http.StatusNotFound, "Not found."
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest, richErr.Message
	case goerrors.CategoryConflict:
		return http.StatusConflict, richErr.Message
	case goerrors.CategoryAuth:
		return http.StatusForbidden, msgForbidden
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable, "Request was cancelled."
	}
	return http.StatusInternalServerError, "Internal server error."
}
