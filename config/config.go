package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rtsettle/crypto"
	"rtsettle/native/compliance"
	"rtsettle/native/token"
)

// Backend identifiers accepted by the Storage setting.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// AssetConfig declares one tokenized asset the node serves a ledger for. The
// initial supply is minted to the issuer at genesis, matching the behaviour
// of a constructor-minted token contract.
type AssetConfig struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	InitialSupply string `toml:"InitialSupply"`
	Issuer        string `toml:"Issuer"`
}

// GenesisConfig seeds the access registry at first boot. The admin address is
// the only unauthenticated grant; officers and issuers are granted by it.
type GenesisConfig struct {
	Admin              string   `toml:"Admin"`
	ComplianceOfficers []string `toml:"ComplianceOfficers"`
}

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Storage     string `toml:"Storage"`
	NetworkName string `toml:"NetworkName"`
	LogFile     string `toml:"LogFile"`

	Genesis    GenesisConfig             `toml:"genesis"`
	Compliance compliance.DenyListConfig `toml:"compliance"`
	Assets     []AssetConfig             `toml:"Assets"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./rtsettle-data"
	}
	if strings.TrimSpace(cfg.Storage) == "" {
		cfg.Storage = BackendLevelDB
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "rtsettle-local"
	}
}

// Validate checks the declared assets, genesis roles, and deny list for
// internal consistency before any state is touched.
func (cfg *Config) Validate() error {
	switch cfg.Storage {
	case BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.Storage)
	}
	if strings.TrimSpace(cfg.Genesis.Admin) != "" {
		if _, err := crypto.DecodeAddress(cfg.Genesis.Admin); err != nil {
			return fmt.Errorf("config: genesis admin: %w", err)
		}
	}
	for _, officer := range cfg.Genesis.ComplianceOfficers {
		if _, err := crypto.DecodeAddress(officer); err != nil {
			return fmt.Errorf("config: compliance officer %q: %w", officer, err)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		symbol, err := token.NormalizeSymbol(asset.Symbol)
		if err != nil {
			return fmt.Errorf("config: asset %d: %w", i, err)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate asset symbol %s", symbol)
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(asset.Issuer) != "" {
			if _, err := crypto.DecodeAddress(asset.Issuer); err != nil {
				return fmt.Errorf("config: asset %s issuer: %w", symbol, err)
			}
		}
		if supply := strings.TrimSpace(asset.InitialSupply); supply != "" {
			for _, r := range supply {
				if r < '0' || r > '9' {
					return fmt.Errorf("config: asset %s initial supply must be a base-10 integer", symbol)
				}
			}
		}
	}
	if _, err := cfg.Compliance.Parameters(); err != nil {
		return err
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Assets = []AssetConfig{
		{Symbol: "TCASH", Name: "Tokenized Cash", Decimals: 18},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
