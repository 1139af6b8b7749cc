// Package config loads service settings from the environment and an
// optional config file.
package config

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/mailer"
	"github.com/goliatone/go-accounts/repository"
)

// Config holds all configuration for the accounts service.
type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	APIPrefix   string `mapstructure:"API_PREFIX"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DBDriver    string `mapstructure:"DB_DRIVER"`
	DBDSN       string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	AutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	SigningKey      string `mapstructure:"JWT_SIGNING_KEY"`
	SigningMethod   string `mapstructure:"JWT_SIGNING_METHOD"`
	ContextKey      string `mapstructure:"JWT_CONTEXT_KEY"`
	TokenExpiration int    `mapstructure:"JWT_EXPIRATION_HOURS"`
	TokenLookup     string `mapstructure:"JWT_TOKEN_LOOKUP"`
	AuthScheme      string `mapstructure:"JWT_AUTH_SCHEME"`
	Issuer          string `mapstructure:"JWT_ISSUER"`
	Audience        string `mapstructure:"JWT_AUDIENCE"`

	MailTransport  string `mapstructure:"MAIL_TRANSPORT"`
	MailFrom       string `mapstructure:"MAIL_FROM"`
	SMTPHost       string `mapstructure:"SMTP_HOST"`
	SMTPPort       int    `mapstructure:"SMTP_PORT"`
	SMTPUsername   string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string `mapstructure:"SMTP_PASSWORD"`
	SMTPTLS        string `mapstructure:"SMTP_TLS"`
	MailgunDomain  string `mapstructure:"MAILGUN_DOMAIN"`
	MailgunAPIKey  string `mapstructure:"MAILGUN_API_KEY"`
	MailgunAPIBase string `mapstructure:"MAILGUN_API_BASE"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	PINLength              int           `mapstructure:"PIN_LENGTH"`
	ActivationNotifyClient bool          `mapstructure:"ACTIVATION_NOTIFY_CLIENT"`
	RegistrationTimeout    time.Duration `mapstructure:"REGISTRATION_TIMEOUT"`
}

var _ accounts.Config = (*Config)(nil)

var keys = []string{
	"HTTP_ADDR", "API_PREFIX", "LOG_LEVEL",
	"DB_DRIVER", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_AUTO_MIGRATE",
	"JWT_SIGNING_KEY", "JWT_SIGNING_METHOD", "JWT_CONTEXT_KEY", "JWT_EXPIRATION_HOURS",
	"JWT_TOKEN_LOOKUP", "JWT_AUTH_SCHEME", "JWT_ISSUER", "JWT_AUDIENCE",
	"MAIL_TRANSPORT", "MAIL_FROM", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_TLS",
	"MAILGUN_DOMAIN", "MAILGUN_API_KEY", "MAILGUN_API_BASE",
	"AMQP_URL", "AMQP_EXCHANGE",
	"PIN_LENGTH", "ACTIVATION_NOTIFY_CLIENT", "REGISTRATION_TIMEOUT",
}

// LoadConfig reads configuration from environment variables and, when
// present, an accounts.env/.yaml file in the working directory.
func LoadConfig() (*Config, error) {
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("API_PREFIX", "/api/v1/accounts")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DRIVER", repository.DriverSQLite)
	viper.SetDefault("DATABASE_URL", "file:accounts.db?cache=shared")
	viper.SetDefault("DB_AUTO_MIGRATE", true)
	viper.SetDefault("JWT_SIGNING_METHOD", "HS256")
	viper.SetDefault("JWT_CONTEXT_KEY", "user")
	viper.SetDefault("JWT_EXPIRATION_HOURS", 24)
	viper.SetDefault("JWT_TOKEN_LOOKUP", "header:Authorization")
	viper.SetDefault("JWT_AUTH_SCHEME", "Bearer")
	viper.SetDefault("JWT_ISSUER", "go-accounts")
	viper.SetDefault("MAIL_TRANSPORT", mailer.TransportLog)
	viper.SetDefault("MAIL_FROM", "no-reply@localhost")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_TLS", "opportunistic")
	viper.SetDefault("AMQP_EXCHANGE", "accounts.events")
	viper.SetDefault("PIN_LENGTH", accounts.DefaultPINLength)
	viper.SetDefault("ACTIVATION_NOTIFY_CLIENT", false)
	viper.SetDefault("REGISTRATION_TIMEOUT", 10*time.Second)

	viper.SetConfigName("accounts")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !goerrors.As(err, &notFound) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
				WithTextCode(TextCodeInvalidConfig)
		}
	}

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config").
			WithTextCode(TextCodeInvalidConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// TextCodeInvalidConfig marks configuration errors
const TextCodeInvalidConfig = "INVALID_CONFIG"

func invalidConfig(key, message string) error {
	return goerrors.New(key+" "+message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidConfig).
		WithMetadata(map[string]any{"key": key})
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return invalidConfig("JWT_SIGNING_KEY", "is required")
	}
	switch c.SigningMethod {
	case "", "HS256", "HS384", "HS512":
	default:
		return invalidConfig("JWT_SIGNING_METHOD", "must be one of HS256, HS384, HS512")
	}
	if c.PINLength < 6 {
		return invalidConfig("PIN_LENGTH", "must be at least 6")
	}
	return nil
}

func (c *Config) GetSigningKey() string {
	return c.SigningKey
}

func (c *Config) GetSigningMethod() string {
	return c.SigningMethod
}

func (c *Config) GetContextKey() string {
	return c.ContextKey
}

func (c *Config) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c *Config) GetTokenLookup() string {
	return c.TokenLookup
}

func (c *Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

// GetAudience splits the comma separated JWT_AUDIENCE value
func (c *Config) GetAudience() []string {
	var out []string
	for _, part := range strings.Split(c.Audience, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DatabaseOptions returns the repository connection options
func (c *Config) DatabaseOptions() repository.Options {
	return repository.Options{
		Driver:       c.DBDriver,
		DSN:          c.DBDSN,
		MaxOpenConns: c.DBMaxConns,
	}
}

// MailerOptions returns the mail transport options
func (c *Config) MailerOptions() mailer.Options {
	return mailer.Options{
		Transport: c.MailTransport,
		SMTP: mailer.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
			TLS:      c.SMTPTLS,
		},
		Mailgun: mailer.MailgunConfig{
			Domain:  c.MailgunDomain,
			APIKey:  c.MailgunAPIKey,
			From:    c.MailFrom,
			APIBase: c.MailgunAPIBase,
		},
	}
}

// NotifierConfig returns the notifier settings
func (c *Config) NotifierConfig() accounts.NotifierConfig {
	return accounts.NotifierConfig{
		NotifyClientOnActivation: c.ActivationNotifyClient,
	}
}
