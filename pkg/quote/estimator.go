// Package quote estimates how many tokens a native-currency payment buys.
package quote

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/pkg/metrics"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

// DefaultDebounce is the quiet period before a typed amount is quoted.
const DefaultDebounce = 500 * time.Millisecond

// ErrSuperseded is returned by Estimate when a newer estimate started while
// this one was in flight. The current quote is left untouched.
var ErrSuperseded = errors.New("quote superseded by newer input")

// Quote is the expected token output for a payment.
type Quote struct {
	Input      units.Amount `json:"input"`
	Expected   units.Amount `json:"expected"`
	Computing  bool         `json:"computing"`
	Generation uint64       `json:"generation"`
}

// RatePerUnit returns Expected/Input, or false when Input is zero.
func (q Quote) RatePerUnit() (*big.Rat, bool) {
	return units.Ratio(q.Expected, q.Input)
}

// Calculator performs the read-only price call. *contracts.Minter implements it.
type Calculator interface {
	CalculateTokenAmount(ctx context.Context, payment *big.Int) (*big.Int, error)
}

// Source returns the calculator to use, or false when no wallet provider is
// available.
type Source func() (Calculator, bool)

// Option configures an Estimator.
type Option func(*Estimator)

func WithLogger(l *zap.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(e *Estimator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithDebounce sets the Submit quiet period.
func WithDebounce(d time.Duration) Option {
	return func(e *Estimator) { e.delay = d }
}

// WithUpdates registers a callback invoked with every applied quote. It runs
// with the estimator locked and must not call back into it.
func WithUpdates(fn func(Quote)) Option {
	return func(e *Estimator) { e.onUpdate = fn }
}

// Estimator keeps the latest quote. Only the newest estimate may change it.
type Estimator struct {
	source   Source
	logger   *zap.Logger
	metrics  metrics.Metrics
	delay    time.Duration
	onUpdate func(Quote)

	ctx    context.Context
	cancel context.CancelFunc
	deb    *Debouncer[units.Amount]

	mu      sync.Mutex
	gen     uint64
	current Quote
}

// NewEstimator creates an estimator. Call Stop to release the debouncer.
func NewEstimator(source Source, opts ...Option) *Estimator {
	e := &Estimator{
		source:  source,
		logger:  zap.NewNop(),
		metrics: metrics.NewNopMetrics(),
		delay:   DefaultDebounce,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.Named("quote")
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.deb = NewDebouncer(e.delay, func(amount units.Amount) {
		if _, err := e.Estimate(e.ctx, amount); err != nil && !errors.Is(err, ErrSuperseded) && e.ctx.Err() == nil {
			e.logger.Debug("debounced estimate failed", zap.Error(err))
		}
	})
	return e
}

// Current returns the latest applied quote.
func (e *Estimator) Current() Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Submit schedules an estimate for amount after the quiet period. Only the
// last of a burst of submissions is estimated.
func (e *Estimator) Submit(amount units.Amount) {
	e.deb.Trigger(amount)
}

// Stop cancels a pending submission and any in-flight debounced estimate.
func (e *Estimator) Stop() {
	e.cancel()
	e.deb.Stop()
}

func (e *Estimator) apply(q Quote) Quote {
	e.current = q
	if e.onUpdate != nil {
		e.onUpdate(q)
	}
	return q
}

// Estimate quotes amount now. A zero amount or a missing provider clears the
// quote without a call. Failures reset the expected output to zero.
func (e *Estimator) Estimate(ctx context.Context, amount units.Amount) (Quote, error) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	var (
		calc Calculator
		ok   bool
	)
	if amount.Sign() > 0 && e.source != nil {
		calc, ok = e.source()
	}
	if !ok {
		q := e.apply(Quote{Input: amount, Generation: gen})
		e.mu.Unlock()
		return q, nil
	}
	// Pending quotes carry no number; the previous one belongs to another input.
	e.apply(Quote{Input: amount, Computing: true, Generation: gen})
	e.mu.Unlock()

	out, err := calc.CalculateTokenAmount(ctx, amount.Wei())

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		e.metrics.IncQuotes(metrics.ResultStale)
		e.logger.Debug("discarding superseded quote", zap.Uint64("generation", gen), zap.Uint64("latest", e.gen))
		return e.current, ErrSuperseded
	}
	if err != nil {
		e.metrics.IncQuotes(metrics.ResultFailure)
		e.logger.Warn("calculating token amount", zap.Stringer("input", amount), zap.Error(err))
		return e.apply(Quote{Input: amount, Generation: gen}), err
	}
	e.metrics.IncQuotes(metrics.ResultSuccess)
	return e.apply(Quote{Input: amount, Expected: units.FromWei(out), Generation: gen}), nil
}
