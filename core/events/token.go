package events

import (
	"math/big"
	"strconv"

	"rtsettle/core/types"
)

const (
	// TypeTokenTransfer is emitted for every balance movement, including the
	// delegated transfers performed during trade settlement.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted when an owner sets a spender allowance.
	TypeTokenApproval = "token.approval"
	// TypeTokenMint is emitted when the issuer expands the supply.
	TypeTokenMint = "token.mint"
	// TypeTokenRestricted is emitted when the compliance officer toggles the
	// restriction flag on an identity.
	TypeTokenRestricted = "token.restricted"
)

type TokenTransfer struct {
	Token    string
	From     [20]byte
	To       [20]byte
	Amount   *big.Int
	Spender  *[20]byte
	Reversal bool
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  normalizeToken(e.Token),
		"from":   addrString(e.From),
		"to":     addrString(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.Spender != nil {
		attrs["spender"] = addrString(*e.Spender)
	}
	if e.Reversal {
		attrs["reversal"] = "true"
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

type TokenApproval struct {
	Token   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{Type: TypeTokenApproval, Attributes: map[string]string{
		"token":   normalizeToken(e.Token),
		"owner":   addrString(e.Owner),
		"spender": addrString(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

type TokenMint struct {
	Token  string
	To     [20]byte
	Amount *big.Int
	Supply *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	return &types.Event{Type: TypeTokenMint, Attributes: map[string]string{
		"token":  normalizeToken(e.Token),
		"to":     addrString(e.To),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}}
}

type TokenRestricted struct {
	Token      string
	Address    [20]byte
	Restricted bool
}

func (TokenRestricted) EventType() string { return TypeTokenRestricted }

func (e TokenRestricted) Event() *types.Event {
	return &types.Event{Type: TypeTokenRestricted, Attributes: map[string]string{
		"token":      normalizeToken(e.Token),
		"address":    addrString(e.Address),
		"restricted": strconv.FormatBool(e.Restricted),
	}}
}
