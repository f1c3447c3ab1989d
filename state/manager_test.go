package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rtsettle/native/settlement"
	"rtsettle/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestBalanceRoundTrip(t *testing.T) {
	manager := newManager(t)
	alice := addr(1)

	balance, err := manager.TokenBalance("TCASH", alice)
	require.NoError(t, err)
	require.Zero(t, balance.Sign(), "unknown identity should hold zero")

	require.NoError(t, manager.TokenSetBalance("TCASH", alice, big.NewInt(1234)))
	balance, err = manager.TokenBalance("TCASH", alice)
	require.NoError(t, err)
	require.Equal(t, int64(1234), balance.Int64())

	other, err := manager.TokenBalance("TSEC", alice)
	require.NoError(t, err)
	require.Zero(t, other.Sign(), "balances must be namespaced by symbol")
}

func TestNegativeAmountRejected(t *testing.T) {
	manager := newManager(t)
	require.Error(t, manager.TokenSetBalance("TCASH", addr(1), big.NewInt(-1)))
	require.Error(t, manager.TokenSetSupply("TCASH", nil))
}

func TestAllowanceRoundTrip(t *testing.T) {
	manager := newManager(t)
	owner, spender := addr(1), addr(2)

	require.NoError(t, manager.TokenSetAllowance("TCASH", owner, spender, big.NewInt(77)))
	allowance, err := manager.TokenAllowance("TCASH", owner, spender)
	require.NoError(t, err)
	require.Equal(t, int64(77), allowance.Int64())

	reversed, err := manager.TokenAllowance("TCASH", spender, owner)
	require.NoError(t, err)
	require.Zero(t, reversed.Sign(), "allowance is directional")
}

func TestRestrictedFlagLifecycle(t *testing.T) {
	manager := newManager(t)
	alice := addr(1)

	restricted, err := manager.TokenRestricted("TCASH", alice)
	require.NoError(t, err)
	require.False(t, restricted)

	require.NoError(t, manager.TokenSetRestricted("TCASH", alice, true))
	restricted, err = manager.TokenRestricted("TCASH", alice)
	require.NoError(t, err)
	require.True(t, restricted)

	require.NoError(t, manager.TokenSetRestricted("TCASH", alice, false))
	restricted, err = manager.TokenRestricted("TCASH", alice)
	require.NoError(t, err)
	require.False(t, restricted)
}

func TestRoleMembersRoundTrip(t *testing.T) {
	manager := newManager(t)

	members, err := manager.RoleMembers("ROLE_ADMIN")
	require.NoError(t, err)
	require.Empty(t, members)

	want := [][20]byte{addr(1), addr(2)}
	require.NoError(t, manager.RoleSetMembers("ROLE_ADMIN", want))
	members, err = manager.RoleMembers("ROLE_ADMIN")
	require.NoError(t, err)
	require.Equal(t, want, members)
}

func TestTradeRoundTrip(t *testing.T) {
	manager := newManager(t)

	_, ok, err := manager.TradeGet(1)
	require.NoError(t, err)
	require.False(t, ok)

	trade := &settlement.Trade{
		ID:             1,
		Seller:         addr(1),
		Buyer:          addr(2),
		SellToken:      "TSEC",
		SellAmount:     big.NewInt(10),
		BuyToken:       "TCASH",
		BuyAmount:      big.NewInt(500),
		SellerApproved: true,
		CreatedAt:      1700000000,
	}
	require.NoError(t, manager.TradePut(trade))

	got, ok, err := manager.TradeGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, trade, got)
}

func TestTradeNextIDSequential(t *testing.T) {
	manager := newManager(t)

	count, err := manager.TradeCount()
	require.NoError(t, err)
	require.Zero(t, count)

	for want := uint64(1); want <= 3; want++ {
		id, err := manager.TradeNextID()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
	count, err = manager.TradeCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestTradeNextIDSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	_, err := manager.TradeNextID()
	require.NoError(t, err)

	reopened := NewManager(db)
	id, err := reopened.TradeNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), id, "counter must come from the store, not memory")
}
