package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"rtsettle/native/settlement"
	"rtsettle/storage"
)

var tradeCounterKey = []byte("settlement/trade/counter")

// Manager persists ledger balances, allowances, restrictions, role
// assignments, and trade records in the underlying key-value store. It
// implements the state interfaces of the token, registry, and settlement
// engines. Values are RLP encoded.
type Manager struct {
	db storage.Database

	// counterMu serialises trade identifier allocation; everything else is a
	// single read or write against the (already thread-safe) backend.
	counterMu sync.Mutex
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func balanceKey(symbol string, addr [20]byte) []byte {
	return []byte("token/" + symbol + "/balance/" + hex.EncodeToString(addr[:]))
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	return []byte("token/" + symbol + "/allowance/" + hex.EncodeToString(owner[:]) + "/" + hex.EncodeToString(spender[:]))
}

func restrictedKey(symbol string, addr [20]byte) []byte {
	return []byte("token/" + symbol + "/restricted/" + hex.EncodeToString(addr[:]))
}

func supplyKey(symbol string) []byte {
	return []byte("token/" + symbol + "/supply")
}

func roleKey(role string) []byte {
	return []byte("registry/role/" + role)
}

func tradeKey(id uint64) []byte {
	return []byte("settlement/trade/" + strconv.FormatUint(id, 10))
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: amount must be non-negative")
	}
	data, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(key, data)
}

// --- token.State ---

func (m *Manager) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	return m.getAmount(balanceKey(symbol, addr))
}

func (m *Manager) TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error {
	return m.putAmount(balanceKey(symbol, addr), amount)
}

func (m *Manager) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	return m.getAmount(allowanceKey(symbol, owner, spender))
}

func (m *Manager) TokenSetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return m.putAmount(allowanceKey(symbol, owner, spender), amount)
}

func (m *Manager) TokenRestricted(symbol string, addr [20]byte) (bool, error) {
	data, err := m.db.Get(restrictedKey(symbol, addr))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var restricted bool
	if err := rlp.DecodeBytes(data, &restricted); err != nil {
		return false, err
	}
	return restricted, nil
}

func (m *Manager) TokenSetRestricted(symbol string, addr [20]byte, restricted bool) error {
	if !restricted {
		return m.db.Delete(restrictedKey(symbol, addr))
	}
	data, err := rlp.EncodeToBytes(restricted)
	if err != nil {
		return err
	}
	return m.db.Put(restrictedKey(symbol, addr), data)
}

func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	return m.getAmount(supplyKey(symbol))
}

func (m *Manager) TokenSetSupply(symbol string, amount *big.Int) error {
	return m.putAmount(supplyKey(symbol), amount)
}

// --- registry.State ---

func (m *Manager) RoleMembers(role string) ([][20]byte, error) {
	data, err := m.db.Get(roleKey(role))
	if errors.Is(err, storage.ErrNotFound) {
		return [][20]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	var members [][20]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (m *Manager) RoleSetMembers(role string, members [][20]byte) error {
	data, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.db.Put(roleKey(role), data)
}

// --- settlement.State ---

// storedTrade mirrors settlement.Trade with RLP-friendly field types.
type storedTrade struct {
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
	CreatedAt      uint64
	ExecutedAt     uint64
}

func (m *Manager) TradePut(trade *settlement.Trade) error {
	if trade == nil {
		return fmt.Errorf("state: nil trade")
	}
	stored := storedTrade{
		ID:             trade.ID,
		Seller:         trade.Seller,
		Buyer:          trade.Buyer,
		SellToken:      trade.SellToken,
		SellAmount:     trade.SellAmount,
		BuyToken:       trade.BuyToken,
		BuyAmount:      trade.BuyAmount,
		SellerApproved: trade.SellerApproved,
		BuyerApproved:  trade.BuyerApproved,
		Executed:       trade.Executed,
	}
	if stored.SellAmount == nil {
		stored.SellAmount = big.NewInt(0)
	}
	if stored.BuyAmount == nil {
		stored.BuyAmount = big.NewInt(0)
	}
	if trade.CreatedAt > 0 {
		stored.CreatedAt = uint64(trade.CreatedAt)
	}
	if trade.ExecutedAt > 0 {
		stored.ExecutedAt = uint64(trade.ExecutedAt)
	}
	data, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return m.db.Put(tradeKey(trade.ID), data)
}

func (m *Manager) TradeGet(id uint64) (*settlement.Trade, bool, error) {
	data, err := m.db.Get(tradeKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedTrade
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, err
	}
	return &settlement.Trade{
		ID:             stored.ID,
		Seller:         stored.Seller,
		Buyer:          stored.Buyer,
		SellToken:      stored.SellToken,
		SellAmount:     stored.SellAmount,
		BuyToken:       stored.BuyToken,
		BuyAmount:      stored.BuyAmount,
		SellerApproved: stored.SellerApproved,
		BuyerApproved:  stored.BuyerApproved,
		Executed:       stored.Executed,
		CreatedAt:      int64(stored.CreatedAt),
		ExecutedAt:     int64(stored.ExecutedAt),
	}, true, nil
}

func (m *Manager) TradeCount() (uint64, error) {
	data, err := m.db.Get(tradeCounterKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// TradeNextID allocates the next sequential trade identifier, starting at 1.
func (m *Manager) TradeNextID() (uint64, error) {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	count, err := m.TradeCount()
	if err != nil {
		return 0, err
	}
	next := count + 1
	data, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(tradeCounterKey, data); err != nil {
		return 0, err
	}
	return next, nil
}
