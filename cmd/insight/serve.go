package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/internal/app"
)

var (
	serveListen string
	serveWS     string
	serveCORS   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the wallet session, transaction orchestrator and quote estimator
behind an HTTP API. When a WebSocket endpoint is configured, token transfers
touching the connected account trigger a chain state refresh.

Example:
  insight serve --config insight.yaml
  insight serve --rpc https://rpc-amoy.polygon.technology --key dev.key --listen :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveWS, "ws", "", "WebSocket RPC endpoint for transfer events (overrides config)")
	serveCmd.Flags().StringVar(&serveCORS, "cors-origin", "", "allowed CORS origin (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}
	if serveWS != "" {
		cfg.WSURL = serveWS
	}
	if serveCORS != "" {
		cfg.CORSOrigin = serveCORS
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.CORSOrigin != "" {
		logger.Info("CORS enabled", zap.String("origin", cfg.CORSOrigin))
	}
	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("insight stopped")
	return nil
}
