package events

import (
	"math/big"
	"strconv"

	"rtsettle/core/types"
)

const (
	TypeTradeInitialized = "settlement.trade.initialized"
	TypeTradeApproved    = "settlement.trade.approved"
	TypeTradeExecuted    = "settlement.trade.executed"
	TypeTradeReversed    = "settlement.trade.reversed"
)

type tradeAttrs struct {
	ID         uint64
	Seller     [20]byte
	Buyer      [20]byte
	SellToken  string
	SellAmount *big.Int
	BuyToken   string
	BuyAmount  *big.Int
}

func (t tradeAttrs) attributes() map[string]string {
	return map[string]string{
		"id":         strconv.FormatUint(t.ID, 10),
		"seller":     addrString(t.Seller),
		"buyer":      addrString(t.Buyer),
		"sellToken":  normalizeToken(t.SellToken),
		"sellAmount": formatAmount(t.SellAmount),
		"buyToken":   normalizeToken(t.BuyToken),
		"buyAmount":  formatAmount(t.BuyAmount),
	}
}

type TradeInitialized struct {
	tradeAttrs
	Creator [20]byte
}

// NewTradeInitialized builds the canonical payload for a freshly recorded
// trade agreement.
func NewTradeInitialized(id uint64, creator, seller, buyer [20]byte, sellToken string, sellAmount *big.Int, buyToken string, buyAmount *big.Int) TradeInitialized {
	return TradeInitialized{
		tradeAttrs: tradeAttrs{ID: id, Seller: seller, Buyer: buyer, SellToken: sellToken, SellAmount: sellAmount, BuyToken: buyToken, BuyAmount: buyAmount},
		Creator:    creator,
	}
}

func (TradeInitialized) EventType() string { return TypeTradeInitialized }

func (e TradeInitialized) Event() *types.Event {
	attrs := e.attributes()
	attrs["creator"] = addrString(e.Creator)
	return &types.Event{Type: TypeTradeInitialized, Attributes: attrs}
}

type TradeApproved struct {
	ID       uint64
	Approver [20]byte
	Seller   bool
}

func (TradeApproved) EventType() string { return TypeTradeApproved }

func (e TradeApproved) Event() *types.Event {
	side := "buyer"
	if e.Seller {
		side = "seller"
	}
	return &types.Event{Type: TypeTradeApproved, Attributes: map[string]string{
		"id":       strconv.FormatUint(e.ID, 10),
		"approver": addrString(e.Approver),
		"side":     side,
	}}
}

type TradeExecuted struct {
	tradeAttrs
	Executor [20]byte
}

func NewTradeExecuted(id uint64, executor, seller, buyer [20]byte, sellToken string, sellAmount *big.Int, buyToken string, buyAmount *big.Int) TradeExecuted {
	return TradeExecuted{
		tradeAttrs: tradeAttrs{ID: id, Seller: seller, Buyer: buyer, SellToken: sellToken, SellAmount: sellAmount, BuyToken: buyToken, BuyAmount: buyAmount},
		Executor:   executor,
	}
}

func (TradeExecuted) EventType() string { return TypeTradeExecuted }

func (e TradeExecuted) Event() *types.Event {
	attrs := e.attributes()
	attrs["executor"] = addrString(e.Executor)
	return &types.Event{Type: TypeTradeExecuted, Attributes: attrs}
}

// TradeReversed records a compensating reverse transfer issued after the
// second settlement leg failed.
type TradeReversed struct {
	ID     uint64
	Token  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Reason string
}

func (TradeReversed) EventType() string { return TypeTradeReversed }

func (e TradeReversed) Event() *types.Event {
	return &types.Event{Type: TypeTradeReversed, Attributes: map[string]string{
		"id":     strconv.FormatUint(e.ID, 10),
		"token":  normalizeToken(e.Token),
		"from":   addrString(e.From),
		"to":     addrString(e.To),
		"amount": formatAmount(e.Amount),
		"reason": e.Reason,
	}}
}
