package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"rtsettle/core/events"
)

var (
	// ErrUnknownTrade is returned when the identifier has never been
	// assigned.
	ErrUnknownTrade = errors.New("settlement: unknown trade")
	// ErrNotAParty is returned when the approval caller is neither the
	// seller nor the buyer of the trade.
	ErrNotAParty = errors.New("settlement: caller is not a party to the trade")
	// ErrAlreadyExecuted is returned by approval and execution attempts on a
	// settled trade.
	ErrAlreadyExecuted = errors.New("settlement: trade already executed")
	// ErrNotFullyApproved is returned when execution is attempted before
	// both parties have approved.
	ErrNotFullyApproved = errors.New("settlement: trade not fully approved")
	// ErrUnknownAsset is returned when a trade names an asset no configured
	// ledger serves.
	ErrUnknownAsset = errors.New("settlement: unknown asset")
	// ErrInvalidAmount is returned for nil, zero, or negative trade amounts.
	ErrInvalidAmount = errors.New("settlement: trade amounts must be positive")

	errNilState   = errors.New("settlement: state not configured")
	errNilLedgers = errors.New("settlement: ledger resolver not configured")
)

const lockStripes = 64

// State abstracts trade record persistence. Identifiers are assigned
// sequentially from 1; records are never deleted.
type State interface {
	TradePut(*Trade) error
	TradeGet(id uint64) (*Trade, bool, error)
	TradeCount() (uint64, error)
	TradeNextID() (uint64, error)
}

// AssetLedger is the slice of ledger behaviour the engine needs: delegated
// transfers against a pre-granted allowance, and the compensating reversal
// used when the second settlement leg fails.
type AssetLedger interface {
	Symbol() string
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	Reverse(spender, from, to [20]byte, amount *big.Int) error
}

// LedgerResolver maps asset symbols to the ledgers serving them.
type LedgerResolver interface {
	Ledger(symbol string) (AssetLedger, bool)
}

// Engine drives the trade lifecycle: initiate, dual approval, and the atomic
// two-leg execution. The engine holds no balances itself; both counterparties
// pre-grant it a spending allowance on their respective ledgers and the
// engine pulls funds from each side into the other.
type Engine struct {
	state       State
	ledgers     LedgerResolver
	coordinator [20]byte
	emitter     events.Emitter
	nowFn       func() int64

	// locks provides per-trade mutual exclusion so no two executions of the
	// same identifier can race past the executed check-and-set.
	locks [lockStripes]sync.Mutex
}

// NewEngine constructs a settlement engine. The coordinator address is the
// spender identity counterparties must grant allowances to.
func NewEngine(state State, ledgers LedgerResolver, coordinator [20]byte) (*Engine, error) {
	if state == nil {
		return nil, errNilState
	}
	if ledgers == nil {
		return nil, errNilLedgers
	}
	return &Engine{
		state:       state,
		ledgers:     ledgers,
		coordinator: coordinator,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
	}, nil
}

// Coordinator returns the spender address counterparties grant allowances to.
func (e *Engine) Coordinator() [20]byte { return e.coordinator }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// InitTrade records an intended bilateral agreement and assigns the next
// sequential identifier. Any caller may invoke it: it moves no funds and does
// not require the named parties' consent, which is gated at approval time
// instead. The creator is recorded on the emitted event for auditability but
// is not part of the trade record.
func (e *Engine) InitTrade(creator, seller, buyer [20]byte, sellToken string, sellAmount *big.Int, buyToken string, buyAmount *big.Int) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sellLedger, ok := e.ledgers.Ledger(sellToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, sellToken)
	}
	buyLedger, ok := e.ledgers.Ledger(buyToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, buyToken)
	}
	if sellAmount == nil || sellAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if buyAmount == nil || buyAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	id, err := e.state.TradeNextID()
	if err != nil {
		return nil, err
	}
	trade := &Trade{
		ID:         id,
		Seller:     seller,
		Buyer:      buyer,
		SellToken:  sellLedger.Symbol(),
		SellAmount: new(big.Int).Set(sellAmount),
		BuyToken:   buyLedger.Symbol(),
		BuyAmount:  new(big.Int).Set(buyAmount),
		CreatedAt:  e.now(),
	}
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.NewTradeInitialized(id, creator, seller, buyer, trade.SellToken, trade.SellAmount, trade.BuyToken, trade.BuyAmount))
	return trade.Clone(), nil
}

// ApproveTrade sets the approval flag for the calling counterparty.
// Re-approving is a no-op, not an error.
func (e *Engine) ApproveTrade(caller [20]byte, id uint64) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	trade, err := e.loadTrade(id)
	if err != nil {
		return nil, err
	}
	if caller != trade.Seller && caller != trade.Buyer {
		return nil, ErrNotAParty
	}
	if trade.Executed {
		return nil, ErrAlreadyExecuted
	}
	isSeller := caller == trade.Seller
	already := (isSeller && trade.SellerApproved) || (!isSeller && trade.BuyerApproved)
	if already {
		return trade.Clone(), nil
	}
	if isSeller {
		trade.SellerApproved = true
	} else {
		trade.BuyerApproved = true
	}
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TradeApproved{ID: id, Approver: caller, Seller: isSeller})
	return trade.Clone(), nil
}

// ExecuteTrade performs the atomic two-leg settlement: the sell-side asset
// moves seller→buyer and the buy-side asset moves buyer→seller, both as
// delegated transfers against the allowances the parties pre-granted to the
// coordinator. Any caller may trigger execution once both approvals exist.
//
// The two legs touch independent ledgers, so atomicity is provided by a
// compensation step rather than a shared commit: if the second leg fails, the
// first leg is reversed before the error is surfaced, and the trade stays
// unexecuted. Only after both legs succeed is the executed flag set.
func (e *Engine) ExecuteTrade(caller [20]byte, id uint64) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	trade, err := e.loadTrade(id)
	if err != nil {
		return nil, err
	}
	if trade.Executed {
		return nil, ErrAlreadyExecuted
	}
	if !trade.SellerApproved || !trade.BuyerApproved {
		return nil, ErrNotFullyApproved
	}
	sellLedger, ok := e.ledgers.Ledger(trade.SellToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, trade.SellToken)
	}
	buyLedger, ok := e.ledgers.Ledger(trade.BuyToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, trade.BuyToken)
	}
	if err := sellLedger.TransferFrom(e.coordinator, trade.Seller, trade.Buyer, trade.SellAmount); err != nil {
		return nil, fmt.Errorf("settlement: sell leg: %w", err)
	}
	if err := buyLedger.TransferFrom(e.coordinator, trade.Buyer, trade.Seller, trade.BuyAmount); err != nil {
		if revErr := sellLedger.Reverse(e.coordinator, trade.Buyer, trade.Seller, trade.SellAmount); revErr != nil {
			// Compensation failure leaves the sell leg settled without its
			// counter-leg. Surface both errors; the operator must reconcile.
			return nil, errors.Join(fmt.Errorf("settlement: buy leg: %w", err), fmt.Errorf("settlement: compensation failed: %w", revErr))
		}
		e.emitter.Emit(events.TradeReversed{
			ID:     id,
			Token:  trade.SellToken,
			From:   trade.Buyer,
			To:     trade.Seller,
			Amount: new(big.Int).Set(trade.SellAmount),
			Reason: err.Error(),
		})
		return nil, fmt.Errorf("settlement: buy leg: %w", err)
	}
	trade.Executed = true
	trade.ExecutedAt = e.now()
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.NewTradeExecuted(id, caller, trade.Seller, trade.Buyer, trade.SellToken, trade.SellAmount, trade.BuyToken, trade.BuyAmount))
	return trade.Clone(), nil
}

// GetTrade returns a copy of the stored trade record.
func (e *Engine) GetTrade(id uint64) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadTrade(id)
}

// ListTrades returns every recorded trade in identifier order.
func (e *Engine) ListTrades() ([]*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	count, err := e.state.TradeCount()
	if err != nil {
		return nil, err
	}
	trades := make([]*Trade, 0, count)
	for id := uint64(1); id <= count; id++ {
		trade, err := e.loadTrade(id)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (e *Engine) loadTrade(id uint64) (*Trade, error) {
	trade, ok, err := e.state.TradeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownTrade
	}
	return SanitizeTrade(trade)
}

func (e *Engine) lockFor(id uint64) *sync.Mutex {
	return &e.locks[id%lockStripes]
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
