// Package app wires configuration, wallet, chain state, transaction flows,
// quotes and the HTTP server into one process.
package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/config"
	"github.com/jmakwana01/InsightTiers/pkg/contracts"
	"github.com/jmakwana01/InsightTiers/pkg/metrics"
	"github.com/jmakwana01/InsightTiers/pkg/quote"
	"github.com/jmakwana01/InsightTiers/pkg/server"
	"github.com/jmakwana01/InsightTiers/pkg/session"
	"github.com/jmakwana01/InsightTiers/pkg/txflow"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
	"github.com/jmakwana01/InsightTiers/pkg/watcher"
)

// App is a fully wired InsightTiers core.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider *wallet.KeyProvider
	watcher  *watcher.Watcher

	Session *session.Session
	Tx      *txflow.Orchestrator
	Quotes  *quote.Estimator
	Notices *txflow.NoticeLog
	Server  *server.Server

	closeOnce sync.Once
}

// LoadKeys loads the signing key named by cfg. It returns no keys when none is
// configured, which leaves the wallet read-only.
func LoadKeys(cfg *config.Config) ([]*wallet.Key, error) {
	switch {
	case cfg.KeyFile != "":
		k, err := wallet.FromKeyFile(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		return []*wallet.Key{k}, nil
	case cfg.KeystoreFile != "":
		pass := os.Getenv(cfg.PassphraseEnv)
		if pass == "" {
			return nil, fmt.Errorf("keystore passphrase: %s is not set", cfg.PassphraseEnv)
		}
		k, err := wallet.FromKeystore(cfg.KeystoreFile, pass)
		if err != nil {
			return nil, err
		}
		return []*wallet.Key{k}, nil
	default:
		return nil, nil
	}
}

// New dials the RPC endpoint and builds every component. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keys, err := LoadKeys(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := wallet.Dial(ctx, cfg.RPCURL, big.NewInt(cfg.ChainID), keys...)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, provider, logger)
	if err != nil {
		provider.Close()
		return nil, err
	}

	if cfg.WSURL != "" {
		w, err := watcher.Dial(ctx, cfg.WSURL, cfg.Addresses().Token, a.Session, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.watcher = w
	}
	return a, nil
}

func build(cfg *config.Config, provider *wallet.KeyProvider, logger *zap.Logger) (*App, error) {
	addrs := cfg.Addresses()

	var m metrics.Metrics = metrics.NewNopMetrics()
	if cfg.MetricsNamespace != "" {
		m = metrics.NewPrometheusMetrics(cfg.MetricsNamespace)
	}

	minter, err := contracts.NewMinter(addrs.Minter, provider.Backend())
	if err != nil {
		return nil, err
	}

	sess := session.New(provider, chainstate.NewReader(addrs, logger),
		session.WithLogger(logger),
		session.WithMetrics(m),
	)

	notices := txflow.NewNoticeLog(50)
	tx := txflow.New(sess, txflow.SuiteFactory(addrs),
		txflow.WithLogger(logger),
		txflow.WithMetrics(m),
		txflow.WithNotifier(notices),
	)

	quotes := quote.NewEstimator(
		func() (quote.Calculator, bool) { return minter, sess.HasProvider() },
		quote.WithLogger(logger),
		quote.WithMetrics(m),
		quote.WithDebounce(cfg.QuoteDebounce),
	)

	srv := server.New(sess, tx, quotes, logger)
	srv.SetCORSOrigin(cfg.CORSOrigin)
	srv.SetNotices(notices)
	srv.SetMetrics(m)

	return &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		provider: provider,
		Session:  sess,
		Tx:       tx,
		Quotes:   quotes,
		Notices:  notices,
		Server:   srv,
	}, nil
}

// Provider returns the wallet provider.
func (a *App) Provider() *wallet.KeyProvider { return a.provider }

// Start subscribes the session to wallet account changes and resumes an
// already authorized account.
func (a *App) Start(ctx context.Context) error {
	return a.Session.Start(ctx)
}

// Run starts the session, the transfer watcher if configured, and the HTTP
// server, and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Serve(ctx, a.cfg.ListenAddr)
	})
	if a.watcher != nil {
		g.Go(func() error {
			a.watcher.Run(ctx)
			return nil
		})
	}

	a.logger.Info("insighttiers running",
		zap.String("listen", a.cfg.ListenAddr),
		zap.String("rpc", a.cfg.RPCURL),
		zap.Int64("chain_id", a.cfg.ChainID),
		zap.Bool("wallet", a.cfg.HasWallet()),
		zap.Bool("watcher", a.watcher != nil))
	return g.Wait()
}

// Close stops background work and releases the RPC connections.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Quotes.Stop()
		a.Session.Stop()
		if a.watcher != nil {
			a.watcher.Close()
		}
		a.provider.Close()
	})
}
