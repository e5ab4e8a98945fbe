package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string `yaml:"listen_addr"` // e.g. ":8080"
	CORSOrigin string `yaml:"cors_origin"` // e.g. "https://insighttiers.app"

	// Chain endpoints
	RPCURL  string `yaml:"rpc_url"`
	WSURL   string `yaml:"ws_url"` // optional; enables the transfer watcher
	ChainID int64  `yaml:"chain_id"`

	// Contract addresses
	TokenContract   string `yaml:"token_contract"`
	StakingContract string `yaml:"staking_contract"`
	MinterContract  string `yaml:"minter_contract"`

	// Wallet: either a hex key file or an encrypted keystore file
	KeyFile       string `yaml:"key_file"`
	KeystoreFile  string `yaml:"keystore_file"`
	PassphraseEnv string `yaml:"passphrase_env"` // env var holding the keystore passphrase

	QuoteDebounce time.Duration `yaml:"quote_debounce"`

	Log LogConfig `yaml:"log"`

	MetricsNamespace string `yaml:"metrics_namespace"` // empty disables metrics
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// DefaultConfig returns a config for the Polygon Amoy deployment.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":8080",
		RPCURL:           "https://rpc-amoy.polygon.technology",
		ChainID:          80002,
		TokenContract:    contracts.DefaultTokenAddress,
		StakingContract:  contracts.DefaultStakingAddress,
		MinterContract:   contracts.DefaultMinterAddress,
		PassphraseEnv:    "INSIGHT_KEYSTORE_PASSPHRASE",
		QuoteDebounce:    500 * time.Millisecond,
		Log:              LogConfig{Level: "info", Format: "json"},
		MetricsNamespace: "insighttiers",
	}
}

// LoadFromFile reads a YAML (or JSON) file, applying defaults for missing fields.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required fields are set and well formed.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	for name, addr := range map[string]string{
		"token_contract":   c.TokenContract,
		"staking_contract": c.StakingContract,
		"minter_contract":  c.MinterContract,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", name, addr)
		}
	}
	if c.KeyFile != "" && c.KeystoreFile != "" {
		return fmt.Errorf("key_file and keystore_file are mutually exclusive")
	}
	if c.QuoteDebounce < 0 {
		return fmt.Errorf("quote_debounce must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Addresses returns the parsed contract addresses. Call Validate first.
func (c *Config) Addresses() contracts.Addresses {
	return contracts.Addresses{
		Token:   common.HexToAddress(c.TokenContract),
		Staking: common.HexToAddress(c.StakingContract),
		Minter:  common.HexToAddress(c.MinterContract),
	}
}

// HasWallet reports whether a signing key is configured.
func (c *Config) HasWallet() bool {
	return c.KeyFile != "" || c.KeystoreFile != ""
}
