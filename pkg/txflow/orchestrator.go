// Package txflow runs the mutating actions: buying tokens from the minter and
// the approve-then-stake saga. At most one action runs at a time.
package txflow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/contracts"
	"github.com/jmakwana01/InsightTiers/pkg/metrics"
	"github.com/jmakwana01/InsightTiers/pkg/units"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

// Ledger submits the contract transactions. *contracts.Suite implements it.
type Ledger interface {
	PurchaseTokens(opts *bind.TransactOpts) (*types.Transaction, error)
	ApproveStaking(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error)
	Stake(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// LedgerFactory binds a Ledger to the session's backend.
type LedgerFactory func(backend wallet.Backend) (Ledger, error)

// SuiteFactory returns a LedgerFactory over the contracts at addrs.
func SuiteFactory(addrs contracts.Addresses) LedgerFactory {
	return func(backend wallet.Backend) (Ledger, error) {
		return contracts.NewSuite(addrs, backend)
	}
}

// Session is the part of the wallet session the orchestrator needs.
type Session interface {
	Signer() (*bind.TransactOpts, bool)
	Backend() (wallet.Backend, bool)
	ChainState() chainstate.UserState
	Refresh(ctx context.Context) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// Orchestrator runs purchases and stakes against the connected session.
type Orchestrator struct {
	session  Session
	ledger   LedgerFactory
	logger   *zap.Logger
	metrics  metrics.Metrics
	notifier Notifier

	sem         *semaphore.Weighted
	transacting atomic.Bool

	mu        sync.Mutex
	pending   []*PendingTransaction
	lastStake StakeState
}

// New creates an orchestrator.
func New(sess Session, ledger LedgerFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:  sess,
		ledger:   ledger,
		logger:   zap.NewNop(),
		metrics:  metrics.NewNopMetrics(),
		notifier: NotifierFunc(func(Notice) {}),
		sem:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("txflow")
	return o
}

// IsTransacting reports whether an action is running.
func (o *Orchestrator) IsTransacting() bool { return o.transacting.Load() }

// Pending returns the in-flight transactions, oldest first.
func (o *Orchestrator) Pending() []PendingTransaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PendingTransaction, len(o.pending))
	for i, p := range o.pending {
		out[i] = *p
	}
	return out
}

// LastStakeState returns where the most recent stake saga ended or is.
func (o *Orchestrator) LastStakeState() StakeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStake
}

// begin claims the single action slot.
func (o *Orchestrator) begin() (func(), error) {
	if !o.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	o.transacting.Store(true)
	o.metrics.SetTransacting(true)
	return func() {
		o.mu.Lock()
		o.pending = nil
		o.mu.Unlock()
		o.transacting.Store(false)
		o.metrics.SetTransacting(false)
		o.sem.Release(1)
	}, nil
}

func (o *Orchestrator) prepare() (Ledger, *bind.TransactOpts, error) {
	signer, ok := o.session.Signer()
	if !ok {
		return nil, nil, ErrNoSigner
	}
	backend, ok := o.session.Backend()
	if !ok {
		return nil, nil, ErrNoSigner
	}
	ledger, err := o.ledger(backend)
	if err != nil {
		return nil, nil, fmt.Errorf("binding contracts: %w", err)
	}
	return ledger, signer, nil
}

// detach checks ctx one last time before anything is submitted and returns
// the context the rest of the action runs on. Once a transaction is out, the
// action runs to completion or failure regardless of the caller going away.
func detach(ctx context.Context, opts *bind.TransactOpts) (context.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txCtx := context.WithoutCancel(ctx)
	opts.Context = txCtx
	return txCtx, nil
}

func (o *Orchestrator) track(kind Kind, amount units.Amount) *PendingTransaction {
	p := &PendingTransaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusSubmitting,
		Amount:    amount,
		StartedAt: time.Now(),
	}
	o.mu.Lock()
	o.pending = append(o.pending, p)
	o.mu.Unlock()
	return p
}

func (o *Orchestrator) update(p *PendingTransaction, fn func(*PendingTransaction)) {
	o.mu.Lock()
	fn(p)
	o.mu.Unlock()
}

// send submits one transaction and waits for a successful receipt.
func (o *Orchestrator) send(ctx context.Context, kind Kind, amount units.Amount, ledger Ledger, submit func() (*types.Transaction, error)) (*types.Receipt, *types.Transaction, error) {
	p := o.track(kind, amount)
	log := o.logger.With(zap.String("kind", string(kind)), zap.String("id", p.ID))

	tx, err := submit()
	if err != nil {
		o.update(p, func(p *PendingTransaction) { p.Status = StatusFailed })
		o.metrics.IncTransactions(string(kind), string(StatusFailed))
		log.Warn("submission failed", zap.Error(err))
		return nil, nil, &TxError{Kind: kind, Step: StepSubmit, Err: err}
	}
	o.update(p, func(p *PendingTransaction) {
		p.Status = StatusSubmitted
		p.Hash = tx.Hash()
	})
	log.Info("transaction submitted", zap.String("hash", tx.Hash().Hex()))

	receipt, err := ledger.WaitMined(ctx, tx)
	if err != nil {
		o.update(p, func(p *PendingTransaction) { p.Status = StatusFailed })
		o.metrics.IncTransactions(string(kind), string(StatusFailed))
		log.Warn("transaction failed", zap.String("hash", tx.Hash().Hex()), zap.Error(err))
		return nil, tx, &TxError{Kind: kind, Step: StepConfirm, Hash: tx.Hash(), Err: err}
	}
	o.update(p, func(p *PendingTransaction) { p.Status = StatusConfirmed })
	o.metrics.IncTransactions(string(kind), string(StatusConfirmed))
	log.Info("transaction confirmed", zap.String("hash", tx.Hash().Hex()))
	return receipt, tx, nil
}

func (o *Orchestrator) refreshAfter(ctx context.Context, kind Kind) {
	if err := o.session.Refresh(ctx); err != nil {
		o.logger.Warn("refresh after transaction failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Purchase pays amount (native currency, 18 decimals) to the minter and waits
// for inclusion. On success the session is refreshed.
func (o *Orchestrator) Purchase(ctx context.Context, amount units.Amount) (PurchaseResult, error) {
	if amount.Sign() <= 0 {
		return PurchaseResult{}, ErrInvalidAmount
	}
	end, err := o.begin()
	if err != nil {
		return PurchaseResult{}, err
	}
	defer end()

	ledger, opts, err := o.prepare()
	if err != nil {
		return PurchaseResult{}, err
	}
	txCtx, err := detach(ctx, opts)
	if err != nil {
		return PurchaseResult{}, err
	}
	opts.Value = amount.Wei()

	receipt, tx, err := o.send(txCtx, KindPurchase, amount, ledger, func() (*types.Transaction, error) {
		return ledger.PurchaseTokens(opts)
	})
	if err != nil {
		o.notifier.Notify(Notice{Kind: KindPurchase, Message: "Error purchasing tokens. Please try again."})
		return PurchaseResult{}, err
	}

	o.notifier.Notify(Notice{Kind: KindPurchase, OK: true, Message: "Tokens purchased successfully!", Hash: tx.Hash()})
	o.refreshAfter(txCtx, KindPurchase)

	res := PurchaseResult{Hash: tx.Hash(), Paid: amount}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res, nil
}

// Stake approves the staking contract for amount and then stakes it. amount
// must not exceed the current token balance. If approval fails, stake is
// never sent. If stake fails, the approval is left in place.
func (o *Orchestrator) Stake(ctx context.Context, amount units.Amount) (StakeResult, error) {
	res := StakeResult{Amount: amount}
	if amount.Sign() <= 0 {
		return res, ErrInvalidAmount
	}
	end, err := o.begin()
	if err != nil {
		return res, err
	}
	defer end()

	ledger, opts, err := o.prepare()
	if err != nil {
		return res, err
	}
	if balance := o.session.ChainState().TokenBalance; amount.Cmp(balance) > 0 {
		return res, fmt.Errorf("%w: staking %s with balance %s", ErrInsufficientBalance, amount, balance)
	}
	txCtx, err := detach(ctx, opts)
	if err != nil {
		return res, err
	}
	wei := amount.Wei()

	o.setStake(&res, ApprovalPending)
	_, approveTx, err := o.send(txCtx, KindApprove, amount, ledger, func() (*types.Transaction, error) {
		return ledger.ApproveStaking(opts, wei)
	})
	if approveTx != nil {
		res.ApproveHash = approveTx.Hash()
	}
	if err != nil {
		o.setStake(&res, FailedAtApproval)
		o.notifier.Notify(Notice{Kind: KindApprove, Message: "Error staking tokens. Please try again."})
		return res, err
	}

	o.setStake(&res, StakePending)
	_, stakeTx, err := o.send(txCtx, KindStake, amount, ledger, func() (*types.Transaction, error) {
		return ledger.Stake(opts, wei)
	})
	if stakeTx != nil {
		res.StakeHash = stakeTx.Hash()
	}
	if err != nil {
		o.setStake(&res, FailedAtStake)
		o.notifier.Notify(Notice{Kind: KindStake, Message: "Error staking tokens. Please try again.", Hash: res.StakeHash})
		return res, err
	}

	o.setStake(&res, StakeDone)
	o.notifier.Notify(Notice{Kind: KindStake, OK: true, Message: "Tokens staked successfully!", Hash: res.StakeHash})
	o.refreshAfter(txCtx, KindStake)
	return res, nil
}

func (o *Orchestrator) setStake(res *StakeResult, s StakeState) {
	res.State = s
	o.mu.Lock()
	o.lastStake = s
	o.mu.Unlock()
	o.logger.Debug("stake saga", zap.Stringer("state", s))
}
