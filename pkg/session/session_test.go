package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/units"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fakeProvider struct {
	mu         sync.Mutex
	accounts   []common.Address
	authorized bool
	requestErr error
	gate       chan struct{} // when set, RequestAccounts waits on it
	entered    chan struct{}
	requests   atomic.Int32
	feed       event.Feed
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.requests.Add(1)
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	p.authorized = true
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *fakeProvider) Accounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *fakeProvider) Backend() wallet.Backend { return nil }

func (p *fakeProvider) Transactor(_ context.Context, account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account, Value: big.NewInt(0)}, nil
}

func (p *fakeProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.feed.Subscribe(ch)
}

// fakeReader answers reads from a per-account table; a non-nil hook runs first.
type fakeReader struct {
	mu     sync.Mutex
	states map[common.Address]chainstate.UserState
	err    error
	hook   func(ctx context.Context, account common.Address)
	reads  atomic.Int32
}

func newReader() *fakeReader {
	return &fakeReader{states: map[common.Address]chainstate.UserState{
		alice: {
			TokenBalance: units.FromTokens(120),
			StakedAmount: units.FromTokens(500),
			Tier:         tiers.Silver,
			Privileges:   chainstate.Privileges{Premium: true},
		},
		bob: {
			TokenBalance: units.FromTokens(7),
			Tier:         tiers.Bronze,
		},
	}}
}

func (r *fakeReader) Read(ctx context.Context, _ wallet.Backend, account common.Address) (chainstate.UserState, error) {
	r.reads.Add(1)
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ctx, account)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return chainstate.UserState{}, r.err
	}
	return r.states[account], nil
}

func (r *fakeReader) setHook(h func(ctx context.Context, account common.Address)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

func (r *fakeReader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func TestConnectRefreshes(t *testing.T) {
	p := &fakeProvider{accounts: []common.Address{alice}}
	s := New(p, newReader())

	snap, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Connected, snap.State)
	assert.Equal(t, alice, snap.Account)
	assert.Equal(t, tiers.Silver, snap.Chain.Tier)
	assert.Equal(t, "120.00", snap.Chain.TokenBalance.Format(2))
	assert.False(t, snap.DataLoading)

	signer, ok := s.Signer()
	require.True(t, ok)
	assert.Equal(t, alice, signer.From)
}

func TestConnectNoProvider(t *testing.T) {
	s := New(nil, newReader())
	snap, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Equal(t, Disconnected, snap.State)
	assert.ErrorIs(t, s.Start(context.Background()), ErrNoProvider)
}

func TestConnectRejected(t *testing.T) {
	p := &fakeProvider{accounts: []common.Address{alice}, requestErr: wallet.ErrUserRejected}
	s := New(p, newReader())

	snap, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.Equal(t, Disconnected, snap.State)
}

func TestConnectEmptyAccounts(t *testing.T) {
	s := New(&fakeProvider{}, newReader())
	_, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Equal(t, Disconnected, s.Snapshot().State)
}

func TestConnectRefreshFailureStillConnects(t *testing.T) {
	r := newReader()
	r.setErr(errors.New("rpc down"))
	s := New(&fakeProvider{accounts: []common.Address{alice}}, r)

	snap, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Connected, snap.State)
	assert.Equal(t, chainstate.UserState{}, snap.Chain)
	assert.Equal(t, "rpc down", snap.LastReadError)
}

func TestDuplicateConnectCommitsOnce(t *testing.T) {
	p := &fakeProvider{
		accounts: []common.Address{alice},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 2),
	}
	s := New(p, newReader())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = s.Connect(context.Background())
	}()
	<-p.entered
	assert.Equal(t, Connecting, s.Snapshot().State)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = s.Connect(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), p.requests.Load())
	assert.Equal(t, Connected, s.Snapshot().State)
}

func TestDisconnectDuringConnectAborts(t *testing.T) {
	p := &fakeProvider{
		accounts: []common.Address{alice},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := New(p, newReader())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		errc <- err
	}()
	<-p.entered
	s.Disconnect()
	close(p.gate)

	assert.ErrorIs(t, <-errc, ErrConnectAborted)
	assert.Equal(t, Disconnected, s.Snapshot().State)
	_, ok := s.Account()
	assert.False(t, ok)
}

func TestAccountChangeWhileConnectingIsAdopted(t *testing.T) {
	p := &fakeProvider{
		accounts: []common.Address{alice},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := New(p, newReader())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		errc <- err
	}()
	<-p.entered
	require.NoError(t, s.OnAccountsChanged(context.Background(), []common.Address{bob}))
	close(p.gate)

	require.NoError(t, <-errc)
	snap := s.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.Equal(t, bob, snap.Account)
	assert.Equal(t, "7", snap.Chain.TokenBalance.String())
	assert.False(t, snap.Chain.Privileges.Premium)

	signer, ok := s.Signer()
	require.True(t, ok)
	assert.Equal(t, bob, signer.From)
}

func TestEmptyAccountsWhileConnectingAborts(t *testing.T) {
	p := &fakeProvider{
		accounts: []common.Address{alice},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := New(p, newReader())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		errc <- err
	}()
	<-p.entered
	require.NoError(t, s.OnAccountsChanged(context.Background(), nil))
	close(p.gate)

	assert.ErrorIs(t, <-errc, ErrConnectAborted)
	assert.Equal(t, Disconnected, s.Snapshot().State)
}

func TestCancelledCallerDoesNotFailSharedConnect(t *testing.T) {
	p := &fakeProvider{
		accounts: []common.Address{alice},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	s := New(p, newReader())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.Connect(ctx)
		first <- err
	}()
	<-p.entered

	second := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(p.gate)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), p.requests.Load())
	assert.Equal(t, Connected, s.Snapshot().State)
	assert.Equal(t, alice, s.Snapshot().Account)
}

func TestDisconnectZeroesState(t *testing.T) {
	s := New(&fakeProvider{accounts: []common.Address{alice}}, newReader())
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	s.Disconnect()
	snap := s.Snapshot()
	assert.Equal(t, Disconnected, snap.State)
	assert.Equal(t, common.Address{}, snap.Account)
	assert.Equal(t, chainstate.UserState{}, snap.Chain)
	assert.True(t, snap.Chain.TokenBalance.IsZero())
	assert.Equal(t, tiers.ID(0), snap.Chain.Tier)
	assert.False(t, snap.Chain.Privileges.Premium)

	_, ok := s.Signer()
	assert.False(t, ok)
	_, ok = s.Backend()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNotConnected)
}

func TestDisconnectDropsInFlightRefresh(t *testing.T) {
	r := newReader()
	s := New(&fakeProvider{accounts: []common.Address{alice}}, r)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	r.setHook(func(context.Context, common.Address) {
		close(started)
		<-release
	})
	errc := make(chan error, 1)
	go func() { errc <- s.Refresh(context.Background()) }()
	<-started
	assert.True(t, s.Snapshot().DataLoading)

	s.Disconnect()
	close(release)
	require.NoError(t, <-errc)

	assert.Equal(t, chainstate.UserState{}, s.Snapshot().Chain)
}

func TestStaleRefreshDiscarded(t *testing.T) {
	r := newReader()
	s := New(&fakeProvider{accounts: []common.Address{alice}}, r)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	// The first refresh blocks and then reports an outdated balance; the
	// second completes immediately with the current one.
	var calls atomic.Int32
	started, release := make(chan struct{}), make(chan struct{})
	r.setHook(func(context.Context, common.Address) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			r.mu.Lock()
			r.states[alice] = chainstate.UserState{TokenBalance: units.FromTokens(1)}
			r.mu.Unlock()
		}
	})

	errc := make(chan error, 1)
	go func() { errc <- s.Refresh(context.Background()) }()
	<-started

	r.mu.Lock()
	r.states[alice] = chainstate.UserState{TokenBalance: units.FromTokens(999), Tier: tiers.Gold}
	r.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, "999", s.Snapshot().Chain.TokenBalance.String())

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, "999", s.Snapshot().Chain.TokenBalance.String())
	assert.Equal(t, tiers.Gold, s.Snapshot().Chain.Tier)
}

func TestRefreshFailureKeepsPriorState(t *testing.T) {
	r := newReader()
	s := New(&fakeProvider{accounts: []common.Address{alice}}, r)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	r.setErr(errors.New("timeout"))
	assert.Error(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, tiers.Silver, snap.Chain.Tier)
	assert.Equal(t, "timeout", snap.LastReadError)

	r.setErr(nil)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Empty(t, s.Snapshot().LastReadError)
}

func TestOnAccountsChanged(t *testing.T) {
	r := newReader()
	s := New(&fakeProvider{accounts: []common.Address{alice, bob}}, r)
	ctx := context.Background()

	// Ignored while disconnected.
	require.NoError(t, s.OnAccountsChanged(ctx, []common.Address{bob}))
	assert.Equal(t, Disconnected, s.Snapshot().State)

	_, err := s.Connect(ctx)
	require.NoError(t, err)
	reads := r.reads.Load()

	// Same first account is a no-op.
	require.NoError(t, s.OnAccountsChanged(ctx, []common.Address{alice, bob}))
	assert.Equal(t, reads, r.reads.Load())

	require.NoError(t, s.OnAccountsChanged(ctx, []common.Address{bob}))
	snap := s.Snapshot()
	assert.Equal(t, bob, snap.Account)
	assert.Equal(t, "7", snap.Chain.TokenBalance.String())
	assert.False(t, snap.Chain.Privileges.Premium)
	signer, ok := s.Signer()
	require.True(t, ok)
	assert.Equal(t, bob, signer.From)

	require.NoError(t, s.OnAccountsChanged(ctx, nil))
	assert.Equal(t, Disconnected, s.Snapshot().State)
}

func TestAccountChangeDropsOldAccountRead(t *testing.T) {
	r := newReader()
	s := New(&fakeProvider{accounts: []common.Address{alice, bob}}, r)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	r.setHook(func(_ context.Context, account common.Address) {
		if account == alice {
			close(started)
			<-release
		}
	})
	errc := make(chan error, 1)
	go func() { errc <- s.Refresh(ctx) }()
	<-started

	require.NoError(t, s.OnAccountsChanged(ctx, []common.Address{bob}))
	close(release)
	require.NoError(t, <-errc)

	snap := s.Snapshot()
	assert.Equal(t, bob, snap.Account)
	assert.Equal(t, tiers.Bronze, snap.Chain.Tier)
	assert.Equal(t, "7", snap.Chain.TokenBalance.String())
}

func TestStartStopListener(t *testing.T) {
	p := &fakeProvider{accounts: []common.Address{alice, bob}}
	s := New(p, newReader())
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	assert.Equal(t, Disconnected, s.Snapshot().State, "nothing authorized yet")

	_, err := s.Connect(ctx)
	require.NoError(t, err)

	p.feed.Send([]common.Address{bob})
	require.Eventually(t, func() bool {
		a, _ := s.Account()
		return a == bob
	}, time.Second, 5*time.Millisecond)

	p.feed.Send([]common.Address{})
	require.Eventually(t, func() bool {
		return s.Snapshot().State == Disconnected
	}, time.Second, 5*time.Millisecond)
}

func TestStartResumesAuthorizedAccount(t *testing.T) {
	p := &fakeProvider{accounts: []common.Address{alice}, authorized: true}
	s := New(p, newReader())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	snap := s.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.Equal(t, alice, snap.Account)
	assert.Equal(t, int32(0), p.requests.Load(), "resume must not prompt")
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&fakeProvider{}, newReader())
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
