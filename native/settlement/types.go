package settlement

import (
	"fmt"
	"math/big"

	"rtsettle/native/token"
)

// TradeStatus is the derived lifecycle phase of a trade. Only the executed
// flag and the two approval flags are stored; the status is computed from
// them.
type TradeStatus uint8

const (
	TradeCreated TradeStatus = iota
	TradePartiallyApproved
	TradeFullyApproved
	TradeExecuted
)

func (s TradeStatus) String() string {
	switch s {
	case TradeCreated:
		return "created"
	case TradePartiallyApproved:
		return "partially_approved"
	case TradeFullyApproved:
		return "fully_approved"
	case TradeExecuted:
		return "executed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Trade records a bilateral agreement to exchange fixed amounts of two
// assets. Records are append-only: once executed they are retained unchanged
// as the audit trail.
type Trade struct {
	ID             uint64
	Seller         [20]byte
	Buyer          [20]byte
	SellToken      string
	SellAmount     *big.Int
	BuyToken       string
	BuyAmount      *big.Int
	SellerApproved bool
	BuyerApproved  bool
	Executed       bool
	CreatedAt      int64
	ExecutedAt     int64
}

// Status derives the lifecycle phase from the stored flags.
func (t *Trade) Status() TradeStatus {
	switch {
	case t == nil:
		return TradeCreated
	case t.Executed:
		return TradeExecuted
	case t.SellerApproved && t.BuyerApproved:
		return TradeFullyApproved
	case t.SellerApproved || t.BuyerApproved:
		return TradePartiallyApproved
	default:
		return TradeCreated
	}
}

// Clone returns a deep copy of the trade allowing callers to mutate the
// result without affecting the stored instance.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := *t
	if t.SellAmount != nil {
		clone.SellAmount = new(big.Int).Set(t.SellAmount)
	} else {
		clone.SellAmount = big.NewInt(0)
	}
	if t.BuyAmount != nil {
		clone.BuyAmount = new(big.Int).Set(t.BuyAmount)
	} else {
		clone.BuyAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeTrade validates and normalises a stored trade definition, returning
// a cloned instance with canonical token casing and non-nil amount fields.
// The function does not mutate the original value.
func SanitizeTrade(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("settlement: nil trade")
	}
	clone := t.Clone()
	sellToken, err := token.NormalizeSymbol(clone.SellToken)
	if err != nil {
		return nil, err
	}
	clone.SellToken = sellToken
	buyToken, err := token.NormalizeSymbol(clone.BuyToken)
	if err != nil {
		return nil, err
	}
	clone.BuyToken = buyToken
	if clone.SellAmount.Sign() < 0 {
		return nil, fmt.Errorf("settlement: sell amount must be non-negative")
	}
	if clone.BuyAmount.Sign() < 0 {
		return nil, fmt.Errorf("settlement: buy amount must be non-negative")
	}
	return clone, nil
}
