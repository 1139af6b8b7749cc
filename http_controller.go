package accounts

import (
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type AccountsControllerRoutes struct {
	Registration        string
	Login               string
	PasswordLogin       string
	Users               string
	User                string
	Activate            string
	Deactivate          string
	ConfirmDeactivation string
	Health              string
}

type AccountsController struct {
	Logger       Logger
	Config       Config
	Lifecycle    *Lifecycle
	Registration *RegisterAccountHandler
	Auther       *Authenticator
	Routes       *AccountsControllerRoutes
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerLifecycle(l *Lifecycle) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Lifecycle = l
		return c
	}
}

func WithControllerRegistration(h *RegisterAccountHandler) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Registration = h
		return c
	}
}

func WithControllerAuthenticator(a *Authenticator) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Auther = a
		return c
	}
}

func WithControllerConfig(cfg Config) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Config = cfg
		return c
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger: nopLogger{},
		Routes: &AccountsControllerRoutes{
			Registration:        "/auth/registration",
			Login:               "/auth/login",
			PasswordLogin:       "/auth/login/password",
			Users:               "/users",
			User:                "/users/:id",
			Activate:            "/users/:id/activate",
			Deactivate:          "/users/deactivate",
			ConfirmDeactivation: "/users/:id/deactivate_confirm",
			Health:              "/health",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing Lifecycle in accounts controller...")
	}

	if c.Registration == nil {
		panic("Missing RegisterAccountHandler in accounts controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in accounts controller...")
	}

	if c.Config == nil {
		panic("Missing Config in accounts controller...")
	}

	return c
}

// RegisterAccountRoutes mounts the API on app, usually a group such as
// /api/v1/accounts.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	app.Get(controller.Routes.Health, controller.Health).
		SetName("accounts.health")

	app.Post(controller.Routes.Registration, controller.RegistrationCreate).
		SetName("accounts.registration")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("accounts.login")
	app.Post(controller.Routes.PasswordLogin, controller.PasswordLoginPost).
		SetName("accounts.login.password")

	protected := controller.Auther.Middleware(controller.Config, false)
	optional := controller.Auther.Middleware(controller.Config, true)

	app.Get(controller.Routes.Users, controller.List, optional).
		SetName("accounts.users.list")
	app.Patch(controller.Routes.Deactivate, controller.Deactivate, protected).
		SetName("accounts.users.deactivate")
	app.Get(controller.Routes.User, controller.Retrieve, optional).
		SetName("accounts.users.get")
	app.Patch(controller.Routes.Activate, controller.Activate, optional).
		SetName("accounts.users.activate")
	app.Patch(controller.Routes.ConfirmDeactivation, controller.ConfirmDeactivation, optional).
		SetName("accounts.users.deactivate_confirm")

	return controller
}

func (a *AccountsController) Health(c router.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *AccountsController) RegistrationCreate(c router.Context) error {
	payload := new(RegisterAccountMessage)
	if err := c.Bind(payload); err != nil {
		a.Logger.Info("register account parse payload", "error", err)
		return parseError(c)
	}

	account, err := a.Registration.Register(c.Context(), *payload)
	if err != nil {
		a.Logger.Info("register account failed", "error", err)
		return ErrorResponse(c, err, a.Logger)
	}

	return c.JSON(http.StatusCreated, account.Summary())
}

func (a *AccountsController) LoginPost(c router.Context) error {
	payload := new(PINLoginPayload)
	if err := c.Bind(payload); err != nil {
		return parseError(c)
	}

	result, err := a.Auther.LoginWithPIN(c.Context(), payload.PIN)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	return c.JSON(http.StatusOK, loginResponse(result))
}

func (a *AccountsController) PasswordLoginPost(c router.Context) error {
	payload := new(PasswordLoginPayload)
	if err := c.Bind(payload); err != nil {
		return parseError(c)
	}

	result, err := a.Auther.LoginWithPassword(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	return c.JSON(http.StatusOK, loginResponse(result))
}

func (a *AccountsController) List(c router.Context) error {
	principal := RequestPrincipal(c)
	if !HasManagerCapability(principal) {
		return ErrorResponse(c, ErrForbidden.Clone(), a.Logger)
	}

	filter, err := ParseListFilter(c.Query("status", ""))
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	records, err := a.Lifecycle.List(c.Context(), principal, filter)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	return c.JSON(http.StatusOK, Summaries(records))
}

func (a *AccountsController) Retrieve(c router.Context) error {
	principal := RequestPrincipal(c)
	id, err := a.targetID(c, principal)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	account, err := a.Lifecycle.Get(c.Context(), principal, id)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}
	return c.JSON(http.StatusOK, account.Summary())
}

func (a *AccountsController) Activate(c router.Context) error {
	principal := RequestPrincipal(c)
	id, err := a.targetID(c, principal)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	account, err := a.Lifecycle.Activate(c.Context(), principal, id)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}
	return c.JSON(http.StatusOK, account.Summary())
}

func (a *AccountsController) Deactivate(c router.Context) error {
	account, err := a.Lifecycle.Deactivate(c.Context(), RequestPrincipal(c))
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}
	return c.JSON(http.StatusOK, account.Summary())
}

func (a *AccountsController) ConfirmDeactivation(c router.Context) error {
	principal := RequestPrincipal(c)
	id, err := a.targetID(c, principal)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}

	account, err := a.Lifecycle.ConfirmDeactivation(c.Context(), principal, id)
	if err != nil {
		return ErrorResponse(c, err, a.Logger)
	}
	return c.JSON(http.StatusOK, account.Summary())
}

// targetID checks the capability before parsing the id so that callers
// without it learn nothing about which ids exist.
func (a *AccountsController) targetID(c router.Context, principal *Principal) (uuid.UUID, error) {
	if !HasManagerCapability(principal) {
		return uuid.Nil, ErrForbidden.Clone()
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, ErrAccountNotFound.Clone()
	}
	return id, nil
}

func parseError(c router.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"detail": "JSON parse error."})
}

func loginResponse(result *LoginResult) map[string]any {
	return map[string]any{
		"token":   result.Token,
		"account": result.Account.Summary(),
	}
}
