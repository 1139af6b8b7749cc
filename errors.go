package accounts

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodePINNotFound        = "PIN_NOT_FOUND"
	TextCodeAccountInactive    = "ACCOUNT_NOT_ACTIVATED"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeConcurrentUpdate   = "CONCURRENT_ACCOUNT_UPDATE"
	TextCodePINCollision       = "PIN_COLLISION"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
)

// NonFieldErrorsKey groups validation messages not tied to a single field
const NonFieldErrorsKey = "non_field_errors"

const (
	msgForbidden       = "You do not have permission to perform this action."
	msgUnauthenticated = "Authentication credentials were not provided."
	msgPINNotFound     = "User with this pin does not exist"
	msgEmailTaken      = "A user is already registered with this e-mail address."
	msgPassportTaken   = "A user is already registered with this passport number address."
)

// ErrForbidden is returned when the principal lacks the required capability.
// The message never carries details about the target.
var ErrForbidden = goerrors.New(msgForbidden, goerrors.CategoryAuth).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUnauthenticated is returned when an operation requires a principal
var ErrUnauthenticated = goerrors.New(msgUnauthenticated, goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned for unknown ids and for manager accounts
var ErrAccountNotFound = goerrors.New("Not found.", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrPINNotFound is returned when no account holds the submitted PIN
var ErrPINNotFound = goerrors.New(msgPINNotFound, goerrors.CategoryNotFound).
	WithTextCode(TextCodePINNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountNotActivated is returned when a PIN matches an account that
// can not log in yet, or anymore.
var ErrAccountNotActivated = goerrors.New(msgForbidden, goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is returned by password login
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrConcurrentUpdate is returned when the account changed between read and write
var ErrConcurrentUpdate = goerrors.New("account was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentUpdate).
	WithCode(goerrors.CodeConflict)

// ErrPINCollision is returned when the generated PIN is already held by
// another account. Nothing was written, activation can be retried.
var ErrPINCollision = goerrors.New("generated PIN is already in use, retry the activation", goerrors.CategoryConflict).
	WithTextCode(TextCodePINCollision).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a bearer token is past its expiration
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens we can not parse or verify
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString password must not be empty
var ErrNoEmptyString = errors.New("password can't be an empty string")

// ErrMismatchedHashAndPassword password does not match hash
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// HasTextCode reports whether err is a rich error with the given text code
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsForbidden checks for ErrForbidden
func IsForbidden(err error) bool {
	return HasTextCode(err, TextCodeForbidden)
}

// IsUnauthenticated checks for ErrUnauthenticated
func IsUnauthenticated(err error) bool {
	return HasTextCode(err, TextCodeUnauthenticated)
}

// IsAccountNotFound checks for ErrAccountNotFound
func IsAccountNotFound(err error) bool {
	return HasTextCode(err, TextCodeAccountNotFound)
}

// IsPINNotFound checks for ErrPINNotFound
func IsPINNotFound(err error) bool {
	return HasTextCode(err, TextCodePINNotFound)
}

// IsConcurrentUpdate checks for ErrConcurrentUpdate
func IsConcurrentUpdate(err error) bool {
	return HasTextCode(err, TextCodeConcurrentUpdate)
}

// IsPINCollision checks for ErrPINCollision
func IsPINCollision(err error) bool {
	return HasTextCode(err, TextCodePINCollision)
}

// IsValidationError reports whether err carries per field messages
func IsValidationError(err error) bool {
	var verrs validation.Errors
	return errors.As(err, &verrs)
}

// FieldError builds a single field validation error
func FieldError(field, message string) validation.Errors {
	return validation.Errors{field: errors.New(message)}
}

// ValidationErrorsToMap flattens ozzo validation errors into the
// field -> messages shape used in HTTP responses.
func ValidationErrorsToMap(err error) map[string][]string {
	out := map[string][]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out[NonFieldErrorsKey] = []string{err.Error()}
		return out
	}

	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		fieldErr := verrs[field]
		if fieldErr == nil {
			continue
		}
		var nested validation.Errors
		if errors.As(fieldErr, &nested) {
			for nk, nv := range ValidationErrorsToMap(nested) {
				out[field+"."+nk] = nv
			}
			continue
		}
		out[field] = append(out[field], capitalize(fieldErr.Error()))
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
