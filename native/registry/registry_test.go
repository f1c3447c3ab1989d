package registry

import (
	"errors"
	"testing"

	"rtsettle/core/events"
)

type mockState struct {
	roles map[string][][20]byte
}

func newMockState() *mockState {
	return &mockState{roles: make(map[string][][20]byte)}
}

func (m *mockState) RoleMembers(role string) ([][20]byte, error) {
	return append([][20]byte(nil), m.roles[role]...), nil
}

func (m *mockState) RoleSetMembers(role string, members [][20]byte) error {
	m.roles[role] = append([][20]byte(nil), members...)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *capturingEmitter) {
	t.Helper()
	reg, err := NewRegistry(newMockState())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	emitter := &capturingEmitter{}
	reg.SetEmitter(emitter)
	return reg, emitter
}

func TestNormalizeRole(t *testing.T) {
	got, err := NormalizeRole("  role_issuer ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != RoleIssuer {
		t.Fatalf("expected %s, got %s", RoleIssuer, got)
	}
	if _, err := NormalizeRole("ROLE_OPERATOR"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)
	admin := addr(1)

	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !reg.HasRole(RoleAdmin, admin) {
		t.Fatalf("bootstrap did not grant admin")
	}
	if err := reg.Bootstrap(addr(2)); err == nil {
		t.Fatalf("second bootstrap should be refused")
	}
}

func TestGrantRequiresAdmin(t *testing.T) {
	reg, emitter := newTestRegistry(t)
	admin, issuer, outsider := addr(1), addr(2), addr(3)
	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := reg.Grant(outsider, RoleIssuer, issuer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.Grant(admin, RoleIssuer, issuer); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !reg.HasRole(RoleIssuer, issuer) {
		t.Fatalf("grant did not take effect")
	}
	eventCount := len(emitter.events)
	if err := reg.Grant(admin, RoleIssuer, issuer); err != nil {
		t.Fatalf("duplicate grant: %v", err)
	}
	if len(emitter.events) != eventCount {
		t.Fatalf("duplicate grant emitted an event")
	}
}

func TestGrantUnknownRole(t *testing.T) {
	reg, _ := newTestRegistry(t)
	admin := addr(1)
	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := reg.Grant(admin, "ROLE_OPERATOR", addr(2)); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	reg, emitter := newTestRegistry(t)
	admin, issuer := addr(1), addr(2)
	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := reg.Grant(admin, RoleIssuer, issuer); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := reg.Revoke(admin, RoleIssuer, issuer); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if reg.HasRole(RoleIssuer, issuer) {
		t.Fatalf("revoke did not take effect")
	}
	eventCount := len(emitter.events)
	if err := reg.Revoke(admin, RoleIssuer, issuer); err != nil {
		t.Fatalf("revoking unheld role should be a no-op: %v", err)
	}
	if len(emitter.events) != eventCount {
		t.Fatalf("no-op revoke emitted an event")
	}
}

func TestRevokeLastAdminRefused(t *testing.T) {
	reg, _ := newTestRegistry(t)
	admin, second := addr(1), addr(2)
	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := reg.Revoke(admin, RoleAdmin, admin); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	if err := reg.Grant(admin, RoleAdmin, second); err != nil {
		t.Fatalf("grant second admin: %v", err)
	}
	if err := reg.Revoke(admin, RoleAdmin, admin); err != nil {
		t.Fatalf("revoke with a remaining admin: %v", err)
	}
	if reg.HasRole(RoleAdmin, admin) {
		t.Fatalf("first admin still holds the role")
	}
}

func TestMembers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	admin := addr(1)
	if err := reg.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := reg.Grant(admin, RoleCompliance, addr(2)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	members, err := reg.Members(RoleCompliance)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != addr(2) {
		t.Fatalf("unexpected members: %v", members)
	}
	if _, err := reg.Members("ROLE_OPERATOR"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}
