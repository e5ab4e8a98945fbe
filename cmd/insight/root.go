package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/internal/app"
	"github.com/jmakwana01/InsightTiers/pkg/apiclient"
	"github.com/jmakwana01/InsightTiers/pkg/config"
	"github.com/jmakwana01/InsightTiers/pkg/logging"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	GitCommit = "unknown"

	// Global flags
	cfgFile   string
	rpcURL    string
	keyFile   string
	chainID   int64
	logLevel  string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "InsightTiers wallet session and staking core",
	Long: `insight connects a wallet to the InsightTiers token, staking and minter
contracts on Polygon Amoy. It can run as an HTTP server or execute single
commands, either in-process against an RPC endpoint or against a running
server (--server).`,
	Version:       fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint (overrides config)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "", "path to wallet private key file (overrides config)")
	rootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", 0, "expected chain id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "use a running insight server instead of an in-process core")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(purchaseCmd)
	rootCmd.AddCommand(stakeCmd)
	rootCmd.AddCommand(tiersCmd)
	rootCmd.AddCommand(keygenCmd)
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return nil, err
		}
	}

	if rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	if keyFile != "" {
		cfg.KeyFile = keyFile
		cfg.KeystoreFile = ""
	}
	if chainID != 0 {
		cfg.ChainID = chainID
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

// withApp builds an in-process core, starts it, and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

// withConnectedApp is withApp with the wallet connected first.
func withConnectedApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if _, err := a.Session.Connect(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func remote() (*apiclient.Client, bool) {
	if serverURL == "" {
		return nil, false
	}
	return apiclient.NewClient(serverURL), true
}
