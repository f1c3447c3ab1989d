package events

import (
	"math/big"
	"strings"

	"rtsettle/crypto"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func addrString(addr [20]byte) string {
	return crypto.MustNewAddress(addr[:]).String()
}

func normalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
