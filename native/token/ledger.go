package token

import (
	"math/big"
	"strings"

	"rtsettle/core/events"
	"rtsettle/native/registry"
)

// State abstracts the persistence required by a single-asset ledger. All
// amounts handed to the setters are defensive copies owned by the callee.
type State interface {
	TokenBalance(symbol string, addr [20]byte) (*big.Int, error)
	TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	TokenSetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
	TokenRestricted(symbol string, addr [20]byte) (bool, error)
	TokenSetRestricted(symbol string, addr [20]byte, restricted bool) error
	TokenSupply(symbol string) (*big.Int, error)
	TokenSetSupply(symbol string, amount *big.Int) error
}

// RoleView is the capability object gating privileged ledger operations. It
// is passed in at construction rather than resolved from ambient state so a
// ledger can only exercise the registry it was explicitly built with.
type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

// NormalizeSymbol canonicalises an asset symbol. Symbols are upper-case,
// non-empty, and at most 12 characters.
func NormalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" || len(normalized) > 12 {
		return "", errBadSymbol
	}
	return normalized, nil
}

// Ledger holds balances, allowances, and the restriction set for one fungible
// asset. Every balance-changing operation checks restrictions before touching
// state, so a failure never leaves a partial mutation behind.
type Ledger struct {
	symbol  string
	state   State
	roles   RoleView
	emitter events.Emitter
}

// NewLedger constructs a ledger for one asset symbol bound to the supplied
// state backend and role capability.
func NewLedger(symbol string, state State, roles RoleView) (*Ledger, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errNilState
	}
	if roles == nil {
		return nil, errNilRoles
	}
	return &Ledger{symbol: normalized, state: state, roles: roles, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Symbol returns the canonical asset symbol the ledger was constructed with.
func (l *Ledger) Symbol() string { return l.symbol }

// TotalSupply returns the currently issued supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return nil, err
	}
	return cloneAmount(supply), nil
}

// BalanceOf returns the balance for the identity. Unknown identities hold
// zero.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.TokenBalance(l.symbol, addr)
	if err != nil {
		return nil, err
	}
	return cloneAmount(balance), nil
}

// Allowance returns the remaining delegated-spend allowance for the pair.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowance(l.symbol, owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneAmount(allowance), nil
}

// IsRestricted reports whether the identity is currently barred from the
// ledger.
func (l *Ledger) IsRestricted(addr [20]byte) (bool, error) {
	if l == nil || l.state == nil {
		return false, errNilState
	}
	return l.state.TokenRestricted(l.symbol, addr)
}

// Transfer debits the sender and credits the recipient. Restriction status is
// evaluated fresh for both parties before any state is touched.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.requireUnrestricted(from, to); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: l.symbol, From: from, To: to, Amount: cloneAmount(amount)})
	return nil
}

// Approve sets (not increments) the spender allowance. A second call replaces
// the prior allowance outright; the window between observing an allowance and
// overwriting it is racy by design, mirroring the token standard this ledger
// is compatible with. Integrations that need increment semantics must set the
// allowance to zero and confirm the spend before granting a new one.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	restricted, err := l.state.TokenRestricted(l.symbol, spender)
	if err != nil {
		return err
	}
	if restricted {
		return ErrRestrictedParty
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.state.TokenSetAllowance(l.symbol, owner, spender, cloneAmount(amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{Token: l.symbol, Owner: owner, Spender: spender, Amount: cloneAmount(amount)})
	return nil
}

// TransferFrom spends from the owner balance against the allowance the owner
// granted to the spender. The allowance is decremented by exactly the spent
// amount before the balances move.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.requireUnrestricted(from, to); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.TokenAllowance(l.symbol, from, spender)
	if err != nil {
		return err
	}
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return ErrAllowanceExceeded
	}
	balance, err := l.state.TokenBalance(l.symbol, from)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	remaining := new(big.Int).Sub(allowance, amount)
	if err := l.state.TokenSetAllowance(l.symbol, from, spender, remaining); err != nil {
		return err
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	spenderCopy := spender
	l.emitter.Emit(events.TokenTransfer{Token: l.symbol, From: from, To: to, Amount: cloneAmount(amount), Spender: &spenderCopy})
	return nil
}

// Mint credits the recipient and expands the supply. Issuer role required;
// the recipient is still subject to the restriction check.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	restricted, err := l.state.TokenRestricted(l.symbol, to)
	if err != nil {
		return err
	}
	if restricted {
		return ErrRestrictedParty
	}
	if !l.roles.HasRole(registry.RoleIssuer, caller) {
		return ErrUnauthorized
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := l.state.TokenBalance(l.symbol, to)
	if err != nil {
		return err
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return err
	}
	newSupply := new(big.Int).Add(cloneAmount(supply), amount)
	if err := l.state.TokenSetSupply(l.symbol, newSupply); err != nil {
		return err
	}
	if err := l.state.TokenSetBalance(l.symbol, to, new(big.Int).Add(cloneAmount(balance), amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenMint{Token: l.symbol, To: to, Amount: cloneAmount(amount), Supply: newSupply})
	return nil
}

// SetRestricted toggles the restriction flag for the identity. Compliance
// role required. Idempotent: re-applying the current flag is a no-op.
func (l *Ledger) SetRestricted(caller, addr [20]byte, restricted bool) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !l.roles.HasRole(registry.RoleCompliance, caller) {
		return ErrUnauthorized
	}
	current, err := l.state.TokenRestricted(l.symbol, addr)
	if err != nil {
		return err
	}
	if current == restricted {
		return nil
	}
	if err := l.state.TokenSetRestricted(l.symbol, addr, restricted); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenRestricted{Token: l.symbol, Address: addr, Restricted: restricted})
	return nil
}

// Reverse undoes a previously settled delegated transfer: funds move back
// from→to and the allowance to granted the spender is re-credited by the
// reversed amount, restoring the pre-transfer state in full. No restriction
// gate applies. It exists solely for the settlement engine's compensation
// path: the first leg has already committed, so the reversal must not be
// blockable by the same restriction that failed the second leg. Balance
// sufficiency and supply conservation still hold.
func (l *Ledger) Reverse(spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	allowance, err := l.state.TokenAllowance(l.symbol, to, spender)
	if err != nil {
		return err
	}
	restored := new(big.Int).Add(cloneAmount(allowance), amount)
	if err := l.state.TokenSetAllowance(l.symbol, to, spender, restored); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: l.symbol, From: from, To: to, Amount: cloneAmount(amount), Reversal: true})
	return nil
}

func (l *Ledger) requireUnrestricted(parties ...[20]byte) error {
	for _, addr := range parties {
		restricted, err := l.state.TokenRestricted(l.symbol, addr)
		if err != nil {
			return err
		}
		if restricted {
			return ErrRestrictedParty
		}
	}
	return nil
}

// move performs the debit/credit pair. The debit is validated before either
// side is written so a failure leaves both balances untouched.
func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	fromBalance, err := l.state.TokenBalance(l.symbol, from)
	if err != nil {
		return err
	}
	if fromBalance == nil || fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.state.TokenBalance(l.symbol, to)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := l.state.TokenSetBalance(l.symbol, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.TokenSetBalance(l.symbol, to, new(big.Int).Add(cloneAmount(toBalance), amount))
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
