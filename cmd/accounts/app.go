package main

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/adapters/amqp"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/mailer"
	"github.com/goliatone/go-accounts/repository"
)

type App struct {
	config    *config.Config
	logger    *glog.BaseLogger
	conn      *repository.Connection
	publisher *amqp.Publisher
}

func newApp(ctx context.Context, migrate bool) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, logger: newLogger(cfg.LogLevel)}

	conn, err := repository.Connect(ctx, cfg.DatabaseOptions(), migrate, app.GetLogger("persistence"))
	if err != nil {
		return nil, err
	}
	app.conn = conn

	return app, nil
}

func newLogger(level string) *glog.BaseLogger {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("accounts"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("accounts"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

func (a *App) GetLogger(name string) accounts.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) Repo() accounts.RepositoryManager {
	return a.conn.Repo
}

// ActivitySink assembles the notifier and, when AMQP_URL is set, the
// event publisher.
func (a *App) ActivitySink() (accounts.ActivitySink, error) {
	transport, err := mailer.New(a.config.MailerOptions(), a.GetLogger("mailer"))
	if err != nil {
		return nil, err
	}

	notifier, err := accounts.NewNotifier(transport, a.Repo().Accounts(),
		accounts.WithNotifierLogger(a.GetLogger("notifier")),
		accounts.WithNotifierConfig(a.config.NotifierConfig()),
	)
	if err != nil {
		return nil, err
	}

	sinks := []accounts.ActivitySink{notifier}

	if strings.TrimSpace(a.config.AMQPURL) != "" {
		publisher, err := amqp.Dial(a.config.AMQPURL,
			amqp.WithExchange(a.config.AMQPExchange),
			amqp.WithLogger(a.GetLogger("amqp")),
		)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
		sinks = append(sinks, publisher)
	}

	return accounts.MultiActivitySink(sinks...), nil
}

func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.conn.Close(); err != nil {
		a.GetLogger("app").Warn("closing database", "error", err)
	}
}
