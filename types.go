package accounts

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging contract used across the package.
// glog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds token options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// Mailer delivers a rendered message. Implementations live in the mailer package.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a plain text email
type Message struct {
	To      []string
	Subject string
	Body    string
}

// PINGenerator produces login PINs for activated accounts
type PINGenerator interface {
	Generate() (string, error)
}

// PINGeneratorFunc adapts a function to PINGenerator
type PINGeneratorFunc func() (string, error)

// Generate implements PINGenerator.
func (f PINGeneratorFunc) Generate() (string, error) {
	return f()
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("accounts"),
		glog.WithAddSource(false),
	).GetLogger("accounts")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func normalizeLogger(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}
