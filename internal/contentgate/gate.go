// Package contentgate provides HTTP middleware that checks the connected
// wallet's tier and premium privilege before serving tier content.
//
// The middleware reads the {tier} path value, evaluates the access policy
// against the session's current chain state, and either passes the request
// through or answers 401/403/404.
package contentgate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jmakwana01/InsightTiers/pkg/access"
	"github.com/jmakwana01/InsightTiers/pkg/session"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
)

// StateSource is the part of the wallet session the gate needs.
type StateSource interface {
	Snapshot() session.Snapshot
}

// Gate holds the session the policy is evaluated against.
type Gate struct {
	state  StateSource
	logger *zap.Logger
}

// NewGate creates a content gate.
func NewGate(state StateSource, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{state: state, logger: logger.Named("contentgate")}
}

type grantKey struct{}

// Grant is attached to the request context of requests the gate lets through.
type Grant struct {
	Requested tiers.ID
	Decision  access.Decision
}

// GrantFrom returns the grant stored by the middleware.
func GrantFrom(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantKey{}).(Grant)
	return g, ok
}

// ParseTier accepts a tier name ("silver") or number ("1").
func ParseTier(s string) (tiers.ID, error) {
	if n, err := strconv.Atoi(s); err == nil {
		id := tiers.ID(n)
		if !id.Known() {
			return 0, fmt.Errorf("unknown tier %d", n)
		}
		return id, nil
	}
	for _, t := range tiers.All() {
		if strings.EqualFold(t.Name, s) {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// HTTPMiddleware gates next on the {tier} path value. Requests without a
// connected wallet get 401; requests the policy denies get 403.
func (g *Gate) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseTier(r.PathValue("tier"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		snap := g.state.Snapshot()
		if !snap.Connected() {
			writeError(w, http.StatusUnauthorized, "wallet not connected, connect via /api/connect")
			return
		}

		d := access.Decide(snap.Chain)
		if !d.HasAccess {
			g.logger.Debug("premium content locked", zap.Stringer("account", snap.Account))
			writeError(w, http.StatusForbidden, "Premium Content Locked: stake INSIGHT tokens to access premium content")
			return
		}
		if !d.CanView(id) {
			g.logger.Debug("tier locked",
				zap.Stringer("account", snap.Account),
				zap.Stringer("requested", id),
				zap.Stringer("tier", d.Tier))
			writeError(w, http.StatusForbidden, fmt.Sprintf("%s content requires the %s tier; current tier is %s", id, id, d.TierName))
			return
		}

		ctx := context.WithValue(r.Context(), grantKey{}, Grant{Requested: id, Decision: d})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Handler serves the catalog entry for the requested tier behind the gate.
func (g *Gate) Handler() http.Handler {
	return g.HTTPMiddleware(http.HandlerFunc(serveContent))
}

// ContentResponse is returned for an unlocked tier.
type ContentResponse struct {
	Item     Item            `json:"item"`
	Decision access.Decision `json:"decision"`
}

func serveContent(w http.ResponseWriter, r *http.Request) {
	grant, ok := GrantFrom(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "access not granted")
		return
	}
	item, ok := Lookup(grant.Requested)
	if !ok {
		writeError(w, http.StatusNotFound, "no content for tier")
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Item: item, Decision: grant.Decision})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
