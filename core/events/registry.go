package events

import (
	"rtsettle/core/types"
)

const (
	TypeRoleGranted = "registry.role_granted"
	TypeRoleRevoked = "registry.role_revoked"
)

type RoleGranted struct {
	Role    string
	Address [20]byte
	Granter [20]byte
}

func (RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *types.Event {
	return &types.Event{Type: TypeRoleGranted, Attributes: map[string]string{
		"role":    e.Role,
		"address": addrString(e.Address),
		"granter": addrString(e.Granter),
	}}
}

type RoleRevoked struct {
	Role    string
	Address [20]byte
	Revoker [20]byte
}

func (RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *types.Event {
	return &types.Event{Type: TypeRoleRevoked, Attributes: map[string]string{
		"role":    e.Role,
		"address": addrString(e.Address),
		"revoker": addrString(e.Revoker),
	}}
}
