package token

import "errors"

var (
	// ErrRestrictedParty is returned when a restricted identity appears as
	// sender, recipient, or spender on a balance-changing operation.
	ErrRestrictedParty = errors.New("token: restricted party")
	// ErrInsufficientBalance is returned when a debit exceeds the sender
	// balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrAllowanceExceeded is returned when a delegated transfer exceeds the
	// spender's remaining allowance.
	ErrAllowanceExceeded = errors.New("token: allowance exceeded")
	// ErrUnauthorized is returned when the caller lacks the role required by
	// a privileged operation.
	ErrUnauthorized = errors.New("token: unauthorized")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token: invalid amount")

	errNilState  = errors.New("token: state not configured")
	errNilRoles  = errors.New("token: role view not configured")
	errBadSymbol = errors.New("token: invalid symbol")
)
