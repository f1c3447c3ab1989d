package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rtsettle/config"
	"rtsettle/crypto"
	"rtsettle/native/compliance"
	"rtsettle/native/registry"
	"rtsettle/native/settlement"
	"rtsettle/native/token"
	"rtsettle/state"
	"rtsettle/storage"
)

// ErrUnknownAsset is returned when an operation names an asset the node does
// not serve a ledger for.
var ErrUnknownAsset = errors.New("node: unknown asset")

// Node wires storage, the state manager, the access registry, the per-asset
// token ledgers, and the settlement engine into one process. Every mutating
// public operation runs under a single mutex: the reference execution
// environment is a serialized-transaction ledger, and the mutex reproduces
// that ordering guarantee for concurrent RPC callers.
type Node struct {
	mu sync.Mutex

	db         storage.Database
	state      *state.Manager
	registry   *registry.Registry
	ledgers    map[string]*token.Ledger
	settlement *settlement.Engine
	denyCheck  func(addr [20]byte) bool
	feed       *EventFeed
	logger     *slog.Logger
}

// CoordinatorAddress is the deterministic spender identity of the settlement
// engine. Counterparties grant it allowances ahead of execution.
func CoordinatorAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("rtsettle/settlement-coordinator/v1"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// NewNode builds a node over the supplied database and runs genesis if the
// state is empty.
func NewNode(db storage.Database, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: database not configured")
	}
	if cfg == nil {
		return nil, errors.New("node: config not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	manager := state.NewManager(db)
	feed := NewEventFeed(logger)

	reg, err := registry.NewRegistry(manager)
	if err != nil {
		return nil, err
	}
	reg.SetEmitter(feed)

	node := &Node{
		db:       db,
		state:    manager,
		registry: reg,
		ledgers:  make(map[string]*token.Ledger, len(cfg.Assets)),
		feed:     feed,
		logger:   logger,
	}

	for _, asset := range cfg.Assets {
		ledger, err := token.NewLedger(asset.Symbol, manager, reg)
		if err != nil {
			return nil, fmt.Errorf("node: asset %s: %w", asset.Symbol, err)
		}
		ledger.SetEmitter(feed)
		node.ledgers[ledger.Symbol()] = ledger
	}

	engine, err := settlement.NewEngine(manager, node, CoordinatorAddress())
	if err != nil {
		return nil, err
	}
	engine.SetEmitter(feed)
	node.settlement = engine

	denyParams, err := cfg.Compliance.Parameters()
	if err != nil {
		return nil, err
	}
	node.denyCheck = denyParams.Checker()

	if err := node.runGenesis(cfg, denyParams); err != nil {
		return nil, err
	}
	return node, nil
}

// Ledger implements settlement.LedgerResolver.
func (n *Node) Ledger(symbol string) (settlement.AssetLedger, bool) {
	normalized, err := token.NormalizeSymbol(symbol)
	if err != nil {
		return nil, false
	}
	ledger, ok := n.ledgers[normalized]
	return ledger, ok
}

func (n *Node) ledger(symbol string) (*token.Ledger, error) {
	normalized, err := token.NormalizeSymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	ledger, ok := n.ledgers[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	return ledger, nil
}

// Assets returns the symbols the node serves ledgers for, sorted.
func (n *Node) Assets() []string {
	symbols := make([]string, 0, len(n.ledgers))
	for symbol := range n.ledgers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Coordinator returns the spender identity used by trade execution.
func (n *Node) Coordinator() [20]byte {
	return CoordinatorAddress()
}

// Events returns the retained event history after the given sequence.
func (n *Node) Events(afterSequence uint64) []RecordedEvent {
	return n.feed.Events(afterSequence)
}

// runGenesis bootstraps roles, initial supplies, and the compliance deny
// list. It is a no-op when an administrator already exists, so restarting a
// node against existing state never re-mints.
func (n *Node) runGenesis(cfg *config.Config, deny compliance.Parameters) error {
	admins, err := n.registry.Members(registry.RoleAdmin)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}
	if strings.TrimSpace(cfg.Genesis.Admin) == "" {
		n.logger.Warn("no genesis admin configured; privileged operations disabled until state is seeded externally")
		return nil
	}
	admin, err := decodeAddr(cfg.Genesis.Admin)
	if err != nil {
		return fmt.Errorf("node: genesis admin: %w", err)
	}
	if err := n.registry.Bootstrap(admin); err != nil {
		return err
	}
	for _, officer := range cfg.Genesis.ComplianceOfficers {
		addr, err := decodeAddr(officer)
		if err != nil {
			return fmt.Errorf("node: compliance officer: %w", err)
		}
		if err := n.registry.Grant(admin, registry.RoleCompliance, addr); err != nil {
			return err
		}
	}
	for _, asset := range cfg.Assets {
		if strings.TrimSpace(asset.Issuer) == "" {
			continue
		}
		issuer, err := decodeAddr(asset.Issuer)
		if err != nil {
			return fmt.Errorf("node: asset %s issuer: %w", asset.Symbol, err)
		}
		if err := n.registry.Grant(admin, registry.RoleIssuer, issuer); err != nil {
			return err
		}
		supply := strings.TrimSpace(asset.InitialSupply)
		if supply == "" || supply == "0" {
			continue
		}
		amount, ok := new(big.Int).SetString(supply, 10)
		if !ok {
			return fmt.Errorf("node: asset %s: invalid initial supply %q", asset.Symbol, supply)
		}
		ledger, err := n.ledger(asset.Symbol)
		if err != nil {
			return err
		}
		if err := ledger.Mint(issuer, issuer, amount); err != nil {
			return fmt.Errorf("node: asset %s genesis mint: %w", asset.Symbol, err)
		}
	}
	for _, addr := range deny.Denied {
		for symbol := range n.ledgers {
			if err := n.state.TokenSetRestricted(symbol, addr, true); err != nil {
				return err
			}
		}
	}
	n.logger.Info("genesis complete",
		slog.Int("assets", len(n.ledgers)),
		slog.Int("denyListed", len(deny.Denied)))
	return nil
}

// --- Ledger operations ---

func (n *Node) TokenTotalSupply(symbol string) (*big.Int, error) {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply()
}

func (n *Node) TokenBalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(addr)
}

func (n *Node) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.Allowance(owner, spender)
}

func (n *Node) TokenIsRestricted(symbol string, addr [20]byte) (bool, error) {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return false, err
	}
	return ledger.IsRestricted(addr)
}

func (n *Node) TokenTransfer(symbol string, from, to [20]byte, amount *big.Int) error {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ledger.Transfer(from, to, amount)
}

func (n *Node) TokenApprove(symbol string, owner, spender [20]byte, amount *big.Int) error {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ledger.Approve(owner, spender, amount)
}

func (n *Node) TokenTransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ledger.TransferFrom(spender, from, to, amount)
}

func (n *Node) TokenMint(symbol string, caller, to [20]byte, amount *big.Int) error {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ledger.Mint(caller, to, amount)
}

func (n *Node) TokenSetRestricted(symbol string, caller, addr [20]byte, restricted bool) error {
	ledger, err := n.ledger(symbol)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ledger.SetRestricted(caller, addr, restricted)
}

// --- Registry operations ---

func (n *Node) GrantRole(caller [20]byte, role string, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Grant(caller, role, addr)
}

func (n *Node) RevokeRole(caller [20]byte, role string, addr [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Revoke(caller, role, addr)
}

func (n *Node) HasRole(role string, addr [20]byte) bool {
	return n.registry.HasRole(role, addr)
}

func (n *Node) RoleMembers(role string) ([][20]byte, error) {
	return n.registry.Members(role)
}

// --- Settlement operations ---

// InitTrade records a new trade after checking both parties against the
// configured deny list. The deny list is a standing gate: unlike the per-asset
// restriction flags it seeds at genesis, it cannot be lifted by a compliance
// officer at runtime.
func (n *Node) InitTrade(creator, seller, buyer [20]byte, sellToken string, sellAmount *big.Int, buyToken string, buyAmount *big.Int) (*settlement.Trade, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, party := range [][20]byte{seller, buyer} {
		if !n.denyCheck(party) {
			return nil, fmt.Errorf("node: trade party %s: %w", crypto.MustNewAddress(party[:]).String(), token.ErrRestrictedParty)
		}
	}
	return n.settlement.InitTrade(creator, seller, buyer, sellToken, sellAmount, buyToken, buyAmount)
}

func (n *Node) ApproveTrade(caller [20]byte, id uint64) (*settlement.Trade, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settlement.ApproveTrade(caller, id)
}

func (n *Node) ExecuteTrade(caller [20]byte, id uint64) (*settlement.Trade, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settlement.ExecuteTrade(caller, id)
}

func (n *Node) GetTrade(id uint64) (*settlement.Trade, error) {
	return n.settlement.GetTrade(id)
}

func (n *Node) ListTrades() ([]*settlement.Trade, error) {
	return n.settlement.ListTrades()
}

func decodeAddr(encoded string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Array(), nil
}
