package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/spf13/cobra"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/repository"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "accounts",
		Short:         "Client account lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newCreateManagerCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := buildServer(app)
			if err != nil {
				return err
			}

			logger := app.GetLogger("http")
			errCh := make(chan error, 1)
			go func() {
				logger.Info("accounts api listening", "addr", app.config.HTTPAddr, "prefix", app.config.APIPrefix)
				errCh <- server.Serve(app.config.HTTPAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// buildServer wires the account components into a fiber backed router
func buildServer(app *App) (router.Server[*fiber.App], error) {
	sink, err := app.ActivitySink()
	if err != nil {
		return nil, err
	}

	cfg := app.config
	repo := app.Repo()

	lifecycle := accounts.NewLifecycle(repo,
		accounts.WithLifecycleLogger(app.GetLogger("lifecycle")),
		accounts.WithLifecycleStateMachineOptions(
			accounts.WithStateMachineActivitySink(sink),
			accounts.WithStateMachinePINGenerator(accounts.NewPINGenerator(cfg.PINLength)),
		),
	)

	registration := accounts.NewRegisterAccountHandler(repo,
		accounts.WithRegisterActivitySink(sink),
		accounts.WithRegisterLogger(app.GetLogger("registration")),
		accounts.WithRegisterTimeout(cfg.RegistrationTimeout),
	)

	tokens := accounts.NewTokenServiceFromConfig(cfg, app.GetLogger("tokens"))
	auther := accounts.NewAuthenticator(repo.Accounts(), tokens,
		accounts.WithAuthenticatorActivitySink(sink),
		accounts.WithAuthenticatorLogger(app.GetLogger("auth")),
	)

	server := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "accounts",
			DisableStartupMessage: true,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
		}))
	})

	accounts.RegisterAccountRoutes(server.Router().Group(cfg.APIPrefix),
		accounts.WithControllerLogger(app.GetLogger("controller")),
		accounts.WithControllerConfig(cfg),
		accounts.WithControllerLifecycle(lifecycle),
		accounts.WithControllerRegistration(registration),
		accounts.WithControllerAuthenticator(auther),
	)

	return server, nil
}

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			logger := app.GetLogger("migrate")
			if down {
				_, err = repository.Rollback(ctx, app.conn.DB, logger)
				return err
			}
			_, err = repository.Migrate(ctx, app.conn.DB, logger)
			return err
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	return cmd
}

func newCreateManagerCmd() *cobra.Command {
	var msg accounts.CreateManagerMessage

	cmd := &cobra.Command{
		Use:   "create-manager",
		Short: "Create an activated manager account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if msg.Password == "" {
				msg.Password = os.Getenv("MANAGER_PASSWORD")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			app, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			handler := accounts.NewCreateManagerHandler(app.Repo(),
				accounts.WithCreateManagerLogger(app.GetLogger("create-manager")),
			)

			account, err := handler.Create(ctx, msg)
			if err != nil {
				if accounts.IsValidationError(err) {
					for field, messages := range accounts.ValidationErrorsToMap(err) {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", field, messages)
					}
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "manager %s created with id %s\n", account.Email, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.Email, "email", "", "manager email")
	cmd.Flags().StringVar(&msg.FirstName, "first-name", "", "manager first name")
	cmd.Flags().StringVar(&msg.LastName, "last-name", "", "manager last name")
	cmd.Flags().StringVar(&msg.Password, "password", "", "manager password, defaults to $MANAGER_PASSWORD")
	cmd.Flags().BoolVar(&msg.IsStaff, "staff", true, "grant staff flag")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
