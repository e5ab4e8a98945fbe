// Package watcher listens for token Transfer events and refreshes the session
// when the connected account sends or receives tokens, so balances and stakes
// changed outside this process show up without a manual refresh.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
)

// DefaultRetryDelay is the pause before resubscribing after an error.
const DefaultRetryDelay = 10 * time.Second

// Refresher is the session surface the watcher drives.
type Refresher interface {
	Account() (common.Address, bool)
	Refresh(ctx context.Context) error
}

// LogSubscriber opens a log subscription. *ethclient.Client implements it
// over WebSocket connections.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Watcher follows Transfer events on the token contract.
type Watcher struct {
	client     LogSubscriber
	closer     func()
	token      common.Address
	transferID common.Hash
	target     Refresher
	logger     *zap.Logger
	retryDelay time.Duration
}

// New creates a watcher over an existing subscriber.
func New(client LogSubscriber, token common.Address, target Refresher, logger *zap.Logger) (*Watcher, error) {
	tokenABI, err := contracts.TokenABI()
	if err != nil {
		return nil, err
	}
	ev, ok := tokenABI.Events["Transfer"]
	if !ok {
		return nil, fmt.Errorf("token ABI has no Transfer event")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		client:     client,
		token:      token,
		transferID: ev.ID,
		target:     target,
		logger:     logger.Named("watcher"),
		retryDelay: DefaultRetryDelay,
	}, nil
}

// Dial connects to a WebSocket RPC endpoint (wss://) and creates a watcher.
func Dial(ctx context.Context, wsURL string, token common.Address, target Refresher, logger *zap.Logger) (*Watcher, error) {
	client, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to websocket RPC: %w", err)
	}
	w, err := New(client, token, target, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	w.closer = client.Close
	return w, nil
}

// Run watches until ctx is cancelled, resubscribing after errors.
func (w *Watcher) Run(ctx context.Context) {
	for {
		err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("subscription error, resubscribing",
			zap.Duration("delay", w.retryDelay), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
	}
}

// Close releases a dialed connection.
func (w *Watcher) Close() {
	if w.closer != nil {
		w.closer()
	}
}

func (w *Watcher) subscribe(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.token},
		Topics:    [][]common.Hash{{w.transferID}},
	}

	logs := make(chan types.Log)
	sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	w.logger.Info("watching token transfers", zap.String("token", w.token.Hex()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("subscription closed")
			}
			return err
		case vLog := <-logs:
			w.handleLog(ctx, vLog)
		}
	}
}

// handleLog refreshes the session if the connected account is either side of
// the transfer. Mints and burns carry the zero address on one side.
func (w *Watcher) handleLog(ctx context.Context, vLog types.Log) {
	// Transfer: Topics[0]=sig, Topics[1]=from, Topics[2]=to
	if len(vLog.Topics) < 3 || vLog.Topics[0] != w.transferID || vLog.Removed {
		return
	}
	account, ok := w.target.Account()
	if !ok {
		return
	}
	from := common.BytesToAddress(vLog.Topics[1].Bytes())
	to := common.BytesToAddress(vLog.Topics[2].Bytes())
	if from != account && to != account {
		return
	}

	w.logger.Debug("transfer touches session account",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("tx", vLog.TxHash.Hex()))
	if err := w.target.Refresh(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("refresh after transfer failed", zap.Error(err))
	}
}
