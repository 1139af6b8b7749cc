package accounts

// Principal is the caller of an operation. A nil Principal is anonymous.
type Principal struct {
	Account *Account
}

// NewPrincipal wraps an authenticated account
func NewPrincipal(account *Account) *Principal {
	if account == nil {
		return nil
	}
	return &Principal{Account: account}
}

// IsAuthenticated reports whether the principal carries an account.
func IsAuthenticated(p *Principal) bool {
	return p != nil && p.Account != nil
}

// HasManagerCapability reports whether the principal may administer
// client accounts. Anonymous principals are never managers.
func HasManagerCapability(p *Principal) bool {
	if !IsAuthenticated(p) {
		return false
	}
	return p.Account.IsManager
}

// Actor returns the reference recorded on activity events
func (p *Principal) Actor() ActorRef {
	if !IsAuthenticated(p) {
		return ActorRef{Type: ActorTypeAnonymous}
	}
	actorType := ActorTypeClient
	if p.Account.IsManager {
		actorType = ActorTypeManager
	}
	return ActorRef{ID: p.Account.ID.String(), Type: actorType}
}

const (
	ActorTypeManager   = "manager"
	ActorTypeClient    = "client"
	ActorTypeSystem    = "system"
	ActorTypeAnonymous = "anonymous"
)

func requireManager(p *Principal) error {
	if HasManagerCapability(p) {
		return nil
	}
	return ErrForbidden.Clone()
}

func requireAuthenticated(p *Principal) error {
	if IsAuthenticated(p) {
		return nil
	}
	return ErrUnauthenticated.Clone()
}
