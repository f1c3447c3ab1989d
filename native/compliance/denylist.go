package compliance

import (
	"fmt"
	"sort"
	"strings"

	"rtsettle/crypto"
)

// DenyListConfig carries the operator-supplied list of identities that must
// start out restricted on every ledger.
type DenyListConfig struct {
	DenyList []string `toml:"DenyList"`
}

// Normalise trims whitespace, removes duplicates, and applies canonical
// casing.
func (cfg DenyListConfig) Normalise() DenyListConfig {
	if len(cfg.DenyList) == 0 {
		return DenyListConfig{}
	}
	trimmed := make([]string, 0, len(cfg.DenyList))
	seen := make(map[string]struct{}, len(cfg.DenyList))
	for _, raw := range cfg.DenyList {
		normalized := strings.ToLower(strings.TrimSpace(raw))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		trimmed = append(trimmed, normalized)
	}
	sort.Strings(trimmed)
	return DenyListConfig{DenyList: trimmed}
}

// Parameters captures the parsed runtime form of the deny list.
type Parameters struct {
	Denied [][20]byte
}

// Parameters converts the configuration into runtime parameters, rejecting
// entries that do not decode to 20-byte account addresses.
func (cfg DenyListConfig) Parameters() (Parameters, error) {
	normalized := cfg.Normalise()
	params := Parameters{}
	if len(normalized.DenyList) == 0 {
		return params, nil
	}
	denied := make([][20]byte, 0, len(normalized.DenyList))
	for _, entry := range normalized.DenyList {
		decoded, err := crypto.DecodeAddress(entry)
		if err != nil {
			return params, fmt.Errorf("compliance: decode deny list entry %q: %w", entry, err)
		}
		denied = append(denied, decoded.Array())
	}
	params.Denied = denied
	return params, nil
}

// Checker returns a predicate reporting whether an address is clear of the
// configured deny list.
func (params Parameters) Checker() func(addr [20]byte) bool {
	if len(params.Denied) == 0 {
		return func([20]byte) bool { return true }
	}
	blocked := make(map[[20]byte]struct{}, len(params.Denied))
	for _, addr := range params.Denied {
		blocked[addr] = struct{}{}
	}
	return func(addr [20]byte) bool {
		_, denied := blocked[addr]
		return !denied
	}
}
