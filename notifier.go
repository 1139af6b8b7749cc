package accounts

import (
	"context"
	"io/fs"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TemplateClientRegistered       = "client_registered.txt"
	TemplateManagerNewRegistration = "manager_new_registration.txt"
	TemplateClientActivated        = "client_activated.txt"
)

const (
	DefaultRegisteredSubject   = "You have been registered in buddha application!"
	DefaultManagerAlertSubject = "New client registered in buddha application!"
	DefaultActivatedSubject    = "Your account approved in buddha application!"
)

// RecipientDirectory answers the queries the notifier needs to address mail
type RecipientDirectory interface {
	ManagerEmails(ctx context.Context) ([]string, error)
	CountByStatus(ctx context.Context, status AccountStatus) (int, error)
}

// NotifierConfig controls subjects and optional recipients
type NotifierConfig struct {
	RegisteredSubject   string
	ManagerAlertSubject string
	ActivatedSubject    string
	// NotifyClientOnActivation also sends the activation mail, PIN
	// included, to the client. By default only managers receive it.
	NotifyClientOnActivation bool
}

// Notifier turns lifecycle activity into email. It is an ActivitySink:
// delivery failures are logged and never reach the caller.
type Notifier struct {
	mailer    Mailer
	directory RecipientDirectory
	templates map[string]*pongo2.Template
	cfg       NotifierConfig
	logger    Logger
}

type NotifierOption func(*Notifier)

func WithNotifierLogger(logger Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithNotifierConfig(cfg NotifierConfig) NotifierOption {
	return func(n *Notifier) {
		if cfg.RegisteredSubject != "" {
			n.cfg.RegisteredSubject = cfg.RegisteredSubject
		}
		if cfg.ManagerAlertSubject != "" {
			n.cfg.ManagerAlertSubject = cfg.ManagerAlertSubject
		}
		if cfg.ActivatedSubject != "" {
			n.cfg.ActivatedSubject = cfg.ActivatedSubject
		}
		n.cfg.NotifyClientOnActivation = cfg.NotifyClientOnActivation
	}
}

// WithNotifierTemplates loads templates from fsys instead of the embedded set.
// Missing files fall back to the embedded templates.
func WithNotifierTemplates(fsys fs.FS) NotifierOption {
	return func(n *Notifier) {
		if fsys == nil {
			return
		}
		for _, name := range notifierTemplateNames() {
			if tpl, err := loadTemplate(fsys, name); err == nil {
				n.templates[name] = tpl
			}
		}
	}
}

func NewNotifier(mailer Mailer, directory RecipientDirectory, opts ...NotifierOption) (*Notifier, error) {
	n := &Notifier{
		mailer:    mailer,
		directory: directory,
		templates: map[string]*pongo2.Template{},
		cfg: NotifierConfig{
			RegisteredSubject:   DefaultRegisteredSubject,
			ManagerAlertSubject: DefaultManagerAlertSubject,
			ActivatedSubject:    DefaultActivatedSubject,
		},
		logger: defaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	embedded, err := GetEmailTemplatesFS()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open email templates")
	}

	for _, name := range notifierTemplateNames() {
		if _, ok := n.templates[name]; ok {
			continue
		}
		tpl, err := loadTemplate(embedded, name)
		if err != nil {
			return nil, err
		}
		n.templates[name] = tpl
	}

	return n, nil
}

var _ ActivitySink = (*Notifier)(nil)

// Record implements ActivitySink.
func (n *Notifier) Record(ctx context.Context, event ActivityEvent) error {
	switch {
	case event.EventType == ActivityEventAccountRegistered:
		n.notifyRegistered(ctx, event.Account)
	case event.EventType == ActivityEventAccountStatusChanged && event.ToStatus == AccountStatusActivated:
		n.notifyActivated(ctx, event.Account)
	}
	return nil
}

func (n *Notifier) notifyRegistered(ctx context.Context, account *Account) {
	if account == nil {
		return
	}

	n.send(ctx, "registration acknowledgment", []string{account.Email}, n.cfg.RegisteredSubject,
		TemplateClientRegistered, pongo2.Context{
			"first_name": account.FirstName,
			"last_name":  account.LastName,
		})

	managers, err := n.directory.ManagerEmails(ctx)
	if err != nil {
		n.logger.Error("notifier could not load manager emails", "error", err)
		return
	}

	waiting, err := n.directory.CountByStatus(ctx, AccountStatusCreating)
	if err != nil {
		n.logger.Error("notifier could not count waiting accounts", "error", err)
		return
	}

	n.send(ctx, "new registration alert", managers, n.cfg.ManagerAlertSubject,
		TemplateManagerNewRegistration, pongo2.Context{
			"waiting": waiting,
		})
}

func (n *Notifier) notifyActivated(ctx context.Context, account *Account) {
	if account == nil || !account.HasPIN() {
		n.logger.Warn("notifier skipped activation mail without pin")
		return
	}

	recipients, err := n.directory.ManagerEmails(ctx)
	if err != nil {
		n.logger.Error("notifier could not load manager emails", "error", err)
		return
	}

	if n.cfg.NotifyClientOnActivation {
		recipients = append(recipients, account.Email)
	}

	n.send(ctx, "activation pin", recipients, n.cfg.ActivatedSubject,
		TemplateClientActivated, pongo2.Context{
			"pin":        *account.PIN,
			"first_name": account.FirstName,
			"last_name":  account.LastName,
		})
}

func (n *Notifier) send(ctx context.Context, kind string, to []string, subject, template string, data pongo2.Context) {
	if len(to) == 0 {
		n.logger.Debug("notifier skipped mail without recipients", "kind", kind)
		return
	}

	tpl, ok := n.templates[template]
	if !ok {
		n.logger.Error("notifier template missing", "template", template)
		return
	}

	body, err := tpl.Execute(data)
	if err != nil {
		n.logger.Error("notifier could not render template", "template", template, "error", err)
		return
	}

	if err := n.mailer.Send(ctx, Message{To: to, Subject: subject, Body: body}); err != nil {
		n.logger.Error("notifier mail delivery failed",
			"kind", kind,
			"recipients", len(to),
			"error", err,
		)
		return
	}

	n.logger.Debug("notifier mail sent", "kind", kind, "recipients", len(to))
}

func notifierTemplateNames() []string {
	return []string{
		TemplateClientRegistered,
		TemplateManagerNewRegistration,
		TemplateClientActivated,
	}
}

func loadTemplate(fsys fs.FS, name string) (*pongo2.Template, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read email template").
			WithMetadata(map[string]any{"template": name})
	}
	tpl, err := pongo2.FromBytes(raw)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse email template").
			WithMetadata(map[string]any{"template": name})
	}
	return tpl, nil
}
