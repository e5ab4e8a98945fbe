package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, contracts.DefaultAddresses(), cfg.Addresses())
	assert.Equal(t, 500*time.Millisecond, cfg.QuoteDebounce)
	assert.False(t, cfg.HasWallet())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
rpc_url: "http://127.0.0.1:8545"
chain_id: 31337
key_file: /tmp/dev.key
quote_debounce: 250ms
log:
  level: debug
  format: console
`), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.Equal(t, 250*time.Millisecond, cfg.QuoteDebounce)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.HasWallet())
	// Unset fields keep their defaults.
	assert.Equal(t, contracts.DefaultMinterAddress, cfg.MinterContract)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rpc_url": "http://node:8545", "metrics_namespace": ""}`), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Empty(t, cfg.MetricsNamespace)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no rpc", func(c *Config) { c.RPCURL = "" }, "rpc_url is required"},
		{"bad chain", func(c *Config) { c.ChainID = 0 }, "chain_id"},
		{"bad address", func(c *Config) { c.StakingContract = "0x123" }, "staking_contract"},
		{"two keys", func(c *Config) { c.KeyFile, c.KeystoreFile = "a", "b" }, "mutually exclusive"},
		{"negative debounce", func(c *Config) { c.QuoteDebounce = -time.Second }, "quote_debounce"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
