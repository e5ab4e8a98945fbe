package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/internal/contentgate"
	"github.com/jmakwana01/InsightTiers/pkg/access"
	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/metrics"
	"github.com/jmakwana01/InsightTiers/pkg/quote"
	"github.com/jmakwana01/InsightTiers/pkg/session"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/txflow"
	"github.com/jmakwana01/InsightTiers/pkg/units"
	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

// SessionService is the wallet session surface the server drives.
type SessionService interface {
	Connect(ctx context.Context) (session.Snapshot, error)
	Disconnect()
	Refresh(ctx context.Context) error
	Snapshot() session.Snapshot
	HasProvider() bool
}

// Transactor runs purchases and stakes.
type Transactor interface {
	Purchase(ctx context.Context, amount units.Amount) (txflow.PurchaseResult, error)
	Stake(ctx context.Context, amount units.Amount) (txflow.StakeResult, error)
	IsTransacting() bool
	Pending() []txflow.PendingTransaction
	LastStakeState() txflow.StakeState
}

// Quoter prices token purchases.
type Quoter interface {
	Estimate(ctx context.Context, amount units.Amount) (quote.Quote, error)
	Current() quote.Quote
}

// Server exposes the wallet session, transaction flows and quotes over HTTP.
type Server struct {
	sess       SessionService
	tx         Transactor
	quotes     Quoter
	gate       *contentgate.Gate
	notices    *txflow.NoticeLog
	metrics    metrics.Metrics
	logger     *zap.Logger
	mux        *http.ServeMux
	corsOrigin string
}

// New creates a server.
func New(sess SessionService, tx Transactor, quotes Quoter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sess:    sess,
		tx:      tx,
		quotes:  quotes,
		gate:    contentgate.NewGate(sess, logger),
		metrics: metrics.NewNopMetrics(),
		logger:  logger.Named("server"),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Session
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	// Quotes and transactions
	s.mux.HandleFunc("GET /api/quote", s.handleQuote)
	s.mux.HandleFunc("POST /api/purchase", s.handlePurchase)
	s.mux.HandleFunc("POST /api/stake", s.handleStake)
	s.mux.HandleFunc("GET /api/notices", s.handleNotices)

	// Tiers and gated content
	s.mux.HandleFunc("GET /api/tiers", s.handleTiers)
	s.mux.Handle("GET /content/{tier}", s.gate.Handler())

	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	return s
}

// SetCORSOrigin configures the allowed CORS origin for cross-origin requests.
func (s *Server) SetCORSOrigin(origin string) {
	s.corsOrigin = origin
}

// SetNotices configures the log served by /api/notices.
func (s *Server) SetNotices(l *txflow.NoticeLog) {
	s.notices = l
}

// SetMetrics configures the registry served by /metrics.
func (s *Server) SetMetrics(m metrics.Metrics) {
	s.metrics = m
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.corsOrigin == "" {
		return s.mux
	}
	return s.corsMiddleware(s.mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// Write timeouts are long because purchase and stake wait for receipts.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.sess.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"time":         time.Now().UTC(),
		"provider":     s.sess.HasProvider(),
		"session":      snap.State,
		"transacting":  s.tx.IsTransacting(),
		"data_loading": snap.DataLoading,
	})
}

// SessionResponse is returned by the session endpoints.
type SessionResponse struct {
	session.Snapshot
	Access      access.Decision             `json:"access"`
	Transacting bool                        `json:"transacting"`
	Pending     []txflow.PendingTransaction `json:"pending"`
	StakeState  txflow.StakeState           `json:"stake_state"`
}

func (s *Server) sessionResponse() SessionResponse {
	snap := s.sess.Snapshot()
	return SessionResponse{
		Snapshot:    snap,
		Access:      access.Decide(snap.Chain),
		Transacting: s.tx.IsTransacting(),
		Pending:     s.tx.Pending(),
		StakeState:  s.tx.LastStakeState(),
	}
}

// GET /api/session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// POST /api/connect -- request accounts from the wallet and load chain state.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sess.Connect(r.Context()); err != nil {
		s.fail(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// POST /api/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sess.Disconnect()
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Refresh(r.Context()); err != nil {
		s.fail(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// QuoteResponse is returned by GET /api/quote.
type QuoteResponse struct {
	quote.Quote
	Rate string `json:"rate,omitempty"`
}

// GET /api/quote?amount=2.5
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		writeJSON(w, http.StatusOK, QuoteResponse{Quote: s.quotes.Current()})
		return
	}
	amount, err := units.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.quotes.Estimate(r.Context(), amount)
	if err != nil {
		s.fail(w, "quote", err)
		return
	}
	resp := QuoteResponse{Quote: q}
	if rate, ok := q.RatePerUnit(); ok {
		resp.Rate = rate.FloatString(4)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AmountRequest is the body for POST /api/purchase and POST /api/stake.
type AmountRequest struct {
	Amount units.Amount `json:"amount"`
}

func decodeAmount(r *http.Request) (units.Amount, error) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return units.Amount{}, err
	}
	return req.Amount, nil
}

// POST /api/purchase
// Request: { "amount": "2.5" } in native units.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.tx.Purchase(r.Context(), amount)
	if err != nil {
		s.fail(w, "purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StakeErrorResponse reports how far a failed stake got.
type StakeErrorResponse struct {
	Error  string             `json:"error"`
	Result txflow.StakeResult `json:"result"`
}

// POST /api/stake
// Request: { "amount": "600" } in INSIGHT tokens.
func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.tx.Stake(r.Context(), amount)
	if err != nil {
		status := statusFor(err)
		s.logFailure("stake", status, err)
		writeJSON(w, status, StakeErrorResponse{Error: err.Error(), Result: res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NoticesResponse is returned by GET /api/notices.
type NoticesResponse struct {
	Notices []txflow.Notice `json:"notices"`
	Count   int             `json:"count"`
}

// GET /api/notices
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	notices := []txflow.Notice{}
	if s.notices != nil {
		notices = s.notices.Recent()
	}
	writeJSON(w, http.StatusOK, NoticesResponse{Notices: notices, Count: len(notices)})
}

// TierResponse is one row of GET /api/tiers.
type TierResponse struct {
	tiers.Info
	Status access.Status `json:"status"`
}

// TiersResponse is returned by GET /api/tiers.
type TiersResponse struct {
	Tiers      []TierResponse     `json:"tiers"`
	Connected  bool               `json:"connected"`
	Projection *txflow.Projection `json:"projection,omitempty"`
}

// GET /api/tiers?stake=600 -- tier table with status labels relative to the
// connected account, plus a projection when stake is given.
func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	snap := s.sess.Snapshot()
	current := tiers.ID(-1)
	if snap.Connected() {
		current = snap.Chain.Tier
	}

	rows := make([]TierResponse, 0, len(tiers.All()))
	for _, t := range tiers.All() {
		rows = append(rows, TierResponse{Info: t, Status: access.StatusFor(t.ID, current)})
	}
	resp := TiersResponse{Tiers: rows, Connected: snap.Connected()}

	if raw := r.URL.Query().Get("stake"); raw != "" {
		amount, err := units.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p := txflow.ProjectStake(snap.Chain, amount)
		resp.Projection = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h := s.metrics.Handler()
	if h == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	h.ServeHTTP(w, r)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var txErr *txflow.TxError
	switch {
	case errors.Is(err, units.ErrInvalidAmount), errors.Is(err, txflow.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, txflow.ErrBusy), errors.Is(err, session.ErrConnectAborted), errors.Is(err, quote.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrNoProvider),
		errors.Is(err, session.ErrNoAccounts), errors.Is(err, txflow.ErrNoSigner),
		errors.Is(err, txflow.ErrInsufficientBalance):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrConnection), errors.Is(err, chainstate.ErrRead),
		errors.Is(err, txflow.ErrReverted), errors.As(err, &txErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	s.logFailure(op, status, err)
	writeError(w, status, err.Error())
}

func (s *Server) logFailure(op string, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("op", op), zap.Int("status", status), zap.Error(err))
		return
	}
	s.logger.Debug("request rejected", zap.String("op", op), zap.Int("status", status), zap.Error(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
