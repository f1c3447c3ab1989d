package registry

import (
	"errors"
	"strings"

	"rtsettle/core/events"
)

// Role identifiers gating privileged ledger and registry operations.
const (
	RoleIssuer     = "ROLE_ISSUER"
	RoleCompliance = "ROLE_COMPLIANCE"
	RoleAdmin      = "ROLE_ADMIN"
)

var (
	// ErrUnauthorized is returned when a non-administrator attempts to grant
	// or revoke a role.
	ErrUnauthorized = errors.New("registry: unauthorized")
	// ErrLastAdmin is returned when a revoke would remove the final
	// administrator, permanently locking out privileged operations.
	ErrLastAdmin = errors.New("registry: cannot revoke last administrator")
	// ErrUnknownRole is returned for role tags outside the supported set.
	ErrUnknownRole = errors.New("registry: unknown role")

	errNilState = errors.New("registry: state not configured")
)

// State abstracts the persisted role membership lists.
type State interface {
	RoleMembers(role string) ([][20]byte, error)
	RoleSetMembers(role string, members [][20]byte) error
}

// Registry assigns roles to identities and answers capability checks for the
// ledgers and the settlement engine.
type Registry struct {
	state   State
	emitter events.Emitter
}

// NewRegistry constructs a registry bound to the supplied state backend.
func NewRegistry(state State) (*Registry, error) {
	if state == nil {
		return nil, errNilState
	}
	return &Registry{state: state, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// NormalizeRole validates a role tag and returns its canonical form.
func NormalizeRole(role string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleIssuer:
		return RoleIssuer, nil
	case RoleCompliance:
		return RoleCompliance, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// Bootstrap self-assigns the administrator role at system genesis. It is the
// only unauthenticated grant and refuses to run once an administrator exists.
func (r *Registry) Bootstrap(admin [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	members, err := r.state.RoleMembers(RoleAdmin)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		return errors.New("registry: already bootstrapped")
	}
	if err := r.state.RoleSetMembers(RoleAdmin, [][20]byte{admin}); err != nil {
		return err
	}
	r.emitter.Emit(events.RoleGranted{Role: RoleAdmin, Address: admin, Granter: admin})
	return nil
}

// HasRole reports whether the address currently holds the role. Errors while
// reading the underlying state result in a false return, matching the
// best-effort semantics required by the capability-check callers.
func (r *Registry) HasRole(role string, addr [20]byte) bool {
	if r == nil || r.state == nil {
		return false
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return false
	}
	members, err := r.state.RoleMembers(normalized)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}

// Members returns the identities currently holding the role.
func (r *Registry) Members(role string) ([][20]byte, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	return r.state.RoleMembers(normalized)
}

// Grant assigns the role to the address. Administrator role required on the
// caller. Duplicate grants are ignored.
func (r *Registry) Grant(caller [20]byte, role string, addr [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if !r.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	members, err := r.state.RoleMembers(normalized)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	members = append(members, addr)
	if err := r.state.RoleSetMembers(normalized, members); err != nil {
		return err
	}
	r.emitter.Emit(events.RoleGranted{Role: normalized, Address: addr, Granter: caller})
	return nil
}

// Revoke removes the role from the address. Administrator role required.
// Revoking the final administrator is refused so privileged operations can
// never be orphaned. Revoking an unheld role is a no-op.
func (r *Registry) Revoke(caller [20]byte, role string, addr [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if !r.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	members, err := r.state.RoleMembers(normalized)
	if err != nil {
		return err
	}
	remaining := make([][20]byte, 0, len(members))
	found := false
	for _, member := range members {
		if member == addr {
			found = true
			continue
		}
		remaining = append(remaining, member)
	}
	if !found {
		return nil
	}
	if normalized == RoleAdmin && len(remaining) == 0 {
		return ErrLastAdmin
	}
	if err := r.state.RoleSetMembers(normalized, remaining); err != nil {
		return err
	}
	r.emitter.Emit(events.RoleRevoked{Role: normalized, Address: addr, Revoker: caller})
	return nil
}
