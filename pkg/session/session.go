// Package session owns the wallet connection and the chain state read for the
// connected account.
//
// A Session moves Disconnected -> Connecting -> Connected -> Disconnected.
// Every refresh is tagged with a generation and the session epoch; the epoch
// changes whenever the account or session identity changes, so a read that
// started for an earlier account can never land on a later one.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/metrics"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

var (
	ErrNotConnected   = errors.New("wallet not connected")
	ErrNoProvider     = errors.New("no wallet provider available")
	ErrConnection     = errors.New("wallet connection failed")
	ErrNoAccounts     = errors.New("wallet returned no accounts")
	ErrConnectAborted = errors.New("connection aborted by disconnect")
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Reader performs one chain state read cycle.
type Reader interface {
	Read(ctx context.Context, backend wallet.Backend, account common.Address) (chainstate.UserState, error)
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	State         State                `json:"state"`
	Account       common.Address       `json:"account"`
	Chain         chainstate.UserState `json:"chain"`
	DataLoading   bool                 `json:"data_loading"`
	LastReadError string               `json:"last_read_error,omitempty"`
}

// Connected reports whether the snapshot was taken while connected.
func (s Snapshot) Connected() bool { return s.State == Connected }

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Session is the wallet session. All methods are safe for concurrent use.
type Session struct {
	provider wallet.Provider
	reader   Reader
	logger   *zap.Logger
	metrics  metrics.Metrics

	connectGroup singleflight.Group

	mu          sync.RWMutex
	state       State
	account     common.Address
	backend     wallet.Backend
	signer      *bind.TransactOpts
	chain       chainstate.UserState
	epoch       uint64
	issuedGen   uint64
	appliedGen  uint64
	inflight    int
	lastReadErr error

	// account named by a change notification received while Connecting
	notified    common.Address
	hasNotified bool

	listenMu sync.Mutex
	sub      event.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a disconnected session. provider may be nil, in which case
// Connect fails with ErrNoProvider.
func New(provider wallet.Provider, reader Reader, opts ...Option) *Session {
	s := &Session{
		provider: provider,
		reader:   reader,
		logger:   zap.NewNop(),
		metrics:  metrics.NewNopMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("session")
	return s
}

// Connect asks the provider for accounts and, on success, becomes Connected
// with the first account and refreshes chain state. Concurrent calls share a
// single attempt, which does not end when one caller's ctx does; a cancelled
// caller just stops waiting. A refresh failure after connecting is logged and
// recorded, not returned.
func (s *Session) Connect(ctx context.Context) (Snapshot, error) {
	if s.provider == nil {
		s.metrics.IncConnectAttempts(metrics.ResultFailure)
		return s.Snapshot(), ErrNoProvider
	}
	err := s.connectShared(ctx, s.provider.RequestAccounts)
	return s.Snapshot(), err
}

func (s *Session) connectShared(ctx context.Context, fetch func(context.Context) ([]common.Address, error)) error {
	ch := s.connectGroup.DoChan("connect", func() (interface{}, error) {
		return nil, s.connect(context.WithoutCancel(ctx), fetch)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) connect(ctx context.Context, fetch func(context.Context) ([]common.Address, error)) error {
	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.hasNotified = false
	epoch := s.epoch
	s.mu.Unlock()
	s.metrics.SetSessionState(Connecting.String())

	accounts, err := fetch(ctx)
	if err != nil {
		s.abortConnect(epoch)
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if len(accounts) == 0 {
		s.abortConnect(epoch)
		return fmt.Errorf("%w: %w", ErrConnection, ErrNoAccounts)
	}
	account := accounts[0]

	// An account change notified while connecting wins over the fetched list.
	for {
		s.mu.RLock()
		if s.hasNotified {
			account = s.notified
		}
		s.mu.RUnlock()

		signer, err := s.provider.Transactor(ctx, account)
		if err != nil {
			s.abortConnect(epoch)
			return fmt.Errorf("%w: %w", ErrConnection, err)
		}
		backend := s.provider.Backend()

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			s.metrics.IncConnectAttempts(metrics.ResultFailure)
			return ErrConnectAborted
		}
		if s.hasNotified && s.notified != account {
			s.mu.Unlock()
			continue
		}
		s.state = Connected
		s.account = account
		s.backend = backend
		s.signer = signer
		s.chain = chainstate.UserState{}
		s.lastReadErr = nil
		s.hasNotified = false
		s.epoch++
		s.mu.Unlock()
		break
	}

	s.metrics.IncConnectAttempts(metrics.ResultSuccess)
	s.metrics.SetSessionState(Connected.String())
	s.logger.Info("wallet connected", zap.String("account", account.Hex()))

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", zap.String("account", account.Hex()), zap.Error(err))
	}
	return nil
}

func (s *Session) abortConnect(epoch uint64) {
	s.metrics.IncConnectAttempts(metrics.ResultFailure)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch && s.state == Connecting {
		s.state = Disconnected
		s.metrics.SetSessionState(Disconnected.String())
	}
}

// Disconnect clears the account, handles and chain state. Once it returns no
// reader observes the previous account's data.
func (s *Session) Disconnect() {
	s.mu.Lock()
	prev := s.account
	wasDisconnected := s.state == Disconnected
	s.state = Disconnected
	s.account = common.Address{}
	s.backend = nil
	s.signer = nil
	s.chain = chainstate.UserState{}
	s.lastReadErr = nil
	s.hasNotified = false
	s.epoch++
	s.mu.Unlock()

	s.metrics.SetSessionState(Disconnected.String())
	if !wasDisconnected {
		s.logger.Info("wallet disconnected", zap.String("account", prev.Hex()))
	}
}

// OnAccountsChanged applies a provider account-change notification. An empty
// list disconnects. A new first account is adopted with fresh zeroed state and
// refreshed. While Connecting the account is recorded and the pending connect
// commits it instead of the one it fetched. Ignored while Disconnected.
func (s *Session) OnAccountsChanged(ctx context.Context, accounts []common.Address) error {
	if len(accounts) == 0 {
		s.Disconnect()
		return nil
	}
	next := accounts[0]

	s.mu.Lock()
	switch s.state {
	case Disconnected:
		s.mu.Unlock()
		return nil
	case Connecting:
		s.notified, s.hasNotified = next, true
		s.mu.Unlock()
		s.logger.Debug("account changed while connecting", zap.String("account", next.Hex()))
		return nil
	}
	same := s.account == next
	s.mu.Unlock()
	if same {
		return nil
	}

	signer, err := s.provider.Transactor(ctx, next)
	if err != nil {
		s.logger.Warn("cannot sign for new account, disconnecting",
			zap.String("account", next.Hex()), zap.Error(err))
		s.Disconnect()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return nil
	}
	prev := s.account
	s.account = next
	s.signer = signer
	s.backend = s.provider.Backend()
	s.chain = chainstate.UserState{}
	s.lastReadErr = nil
	s.epoch++
	s.mu.Unlock()

	s.logger.Info("account changed", zap.String("from", prev.Hex()), zap.String("to", next.Hex()))
	return s.Refresh(ctx)
}

// Refresh reads chain state for the current account. A result is applied
// only if no newer refresh has been applied and the account is unchanged;
// otherwise it is dropped. On failure the prior state is kept and the error is
// recorded and returned.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.issuedGen++
	gen, epoch := s.issuedGen, s.epoch
	backend, account := s.backend, s.account
	s.inflight++
	s.mu.Unlock()

	start := time.Now()
	st, err := s.reader.Read(ctx, backend, account)
	s.metrics.ObserveRefreshDuration(time.Since(start))

	s.mu.Lock()
	s.inflight--
	stale := epoch != s.epoch || gen <= s.appliedGen
	if err != nil {
		if !stale {
			s.lastReadErr = err
		}
		s.mu.Unlock()
		s.metrics.IncRefreshes(metrics.ResultFailure)
		s.logger.Warn("refresh failed", zap.String("account", account.Hex()), zap.Error(err))
		return err
	}
	if stale {
		s.mu.Unlock()
		s.metrics.IncRefreshes(metrics.ResultStale)
		s.logger.Debug("discarding stale refresh", zap.Uint64("generation", gen))
		return nil
	}
	s.chain = st
	s.appliedGen = gen
	s.lastReadErr = nil
	s.mu.Unlock()

	s.metrics.IncRefreshes(metrics.ResultSuccess)
	return nil
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		State:       s.state,
		Account:     s.account,
		Chain:       s.chain,
		DataLoading: s.state == Connected && s.inflight > 0,
	}
	if s.lastReadErr != nil {
		snap.LastReadError = s.lastReadErr.Error()
	}
	return snap
}

// Account returns the connected account.
func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.state == Connected
}

// Backend returns the provider's chain handle while connected.
func (s *Session) Backend() (wallet.Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Connected || s.backend == nil {
		return nil, false
	}
	return s.backend, true
}

// Signer returns a copy of the signing options while connected.
func (s *Session) Signer() (*bind.TransactOpts, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Connected || s.signer == nil {
		return nil, false
	}
	cp := *s.signer
	return &cp, true
}

// ChainState returns the last applied chain state.
func (s *Session) ChainState() chainstate.UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain
}

// HasProvider reports whether a wallet provider is configured.
func (s *Session) HasProvider() bool { return s.provider != nil }

// Start subscribes to provider account changes and resumes an account the
// provider has already authorized, without prompting. Stop must be called to
// release the listener.
func (s *Session) Start(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}
	s.listenMu.Lock()
	if s.sub != nil {
		s.listenMu.Unlock()
		return nil
	}
	ch := make(chan []common.Address, 8)
	sub := s.provider.SubscribeAccountsChanged(ch)
	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.sub, s.cancel, s.done = sub, cancel, done
	s.listenMu.Unlock()

	go s.listen(lctx, ch, sub, done)

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		s.logger.Warn("checking authorized accounts", zap.Error(err))
		return nil
	}
	if len(accounts) > 0 {
		if err := s.connectShared(ctx, s.provider.Accounts); err != nil {
			s.logger.Warn("resuming session", zap.Error(err))
		}
	}
	return nil
}

func (s *Session) listen(ctx context.Context, ch <-chan []common.Address, sub event.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case accounts := <-ch:
			if err := s.OnAccountsChanged(ctx, accounts); err != nil && ctx.Err() == nil {
				s.logger.Warn("handling account change", zap.Error(err))
			}
		case err, ok := <-sub.Err():
			if ok && err != nil {
				s.logger.Error("account subscription failed", zap.Error(err))
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop unsubscribes from account changes and waits for the listener to exit.
func (s *Session) Stop() {
	s.listenMu.Lock()
	sub, cancel, done := s.sub, s.cancel, s.done
	s.sub, s.cancel, s.done = nil, nil, nil
	s.listenMu.Unlock()
	if sub == nil {
		return
	}
	cancel()
	sub.Unsubscribe()
	<-done
}
