package main

import (
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmakwana01/InsightTiers/internal/chaintest"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

// execute runs the root command with args and resets global flags afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile, rpcURL, keyFile, logLevel, serverURL = "", "", "", "", ""
		chainID = 0
		keygenOut, tiersStake = "", ""
		statusJSON = false
	})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestKeygenWritesKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.key")
	out, err := execute(t, "keygen", "--out", path)
	require.NoError(t, err)

	k, err := wallet.FromKeyFile(path)
	require.NoError(t, err)
	assert.Contains(t, out, k.Address().Hex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTiersOffline(t *testing.T) {
	out, err := execute(t, "tiers", "--stake", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Bronze")
	assert.Contains(t, out, "Priority support")
	assert.NotContains(t, out, "STATUS")
	assert.Contains(t, out, "tier Gold")
}

func TestQuoteRejectsZero(t *testing.T) {
	_, err := execute(t, "quote", "0")
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc_url: http://file:8545\nkeystore_file: /tmp/ks.json\n"), 0600))

	cfgFile, rpcURL, keyFile, chainID, logLevel = path, "http://flag:8545", "/tmp/dev.key", 31337, "debug"
	t.Cleanup(func() {
		cfgFile, rpcURL, keyFile, logLevel = "", "", "", ""
		chainID = 0
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://flag:8545", cfg.RPCURL)
	assert.Equal(t, "/tmp/dev.key", cfg.KeyFile)
	assert.Empty(t, cfg.KeystoreFile)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestQuoteInProcess(t *testing.T) {
	node := chaintest.NewNode(80002)
	defer node.Close()
	node.Handle("calculateTokenAmount(uint256)", func(_ common.Address, args []byte) ([]byte, error) {
		return chaintest.Uint(new(big.Int).Mul(chaintest.ArgUint(args), big.NewInt(100))), nil
	})

	out, err := execute(t, "quote", "2.5", "--rpc", node.URL(), "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "You receive: 250.00 INSIGHT")
	assert.Contains(t, out, "1 = 100.00 INSIGHT")
}

func TestStatusRemote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"state":"connected","account":"0x1111111111111111111111111111111111111111",
			"chain":{"token_balance":"120","staked_amount":"500","tier":1,
			"privileges":{"premium":true,"webinars":true,"support":false}},"stake_state":"idle"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	out, err := execute(t, "status", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Balance:    120.00 INSIGHT")
	assert.Contains(t, out, "Tier:       Silver")
	assert.Contains(t, out, "[Bronze Silver]")
}
