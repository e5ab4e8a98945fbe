// Package metrics instruments the session, transaction and quote paths.
package metrics

import (
	"net/http"
	"time"
)

// Metrics collects application metrics. Implementations are safe for
// concurrent use and never block.
type Metrics interface {
	// Session metrics
	IncConnectAttempts(result string)
	SetSessionState(state string)
	IncRefreshes(result string)
	ObserveRefreshDuration(d time.Duration)

	// Transaction metrics
	IncTransactions(kind, status string)
	SetTransacting(active bool)

	// Quote metrics
	IncQuotes(result string)

	// Handler serves the metrics, or nil when collection is disabled.
	Handler() http.Handler
}

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultStale   = "stale"
)

// Session states reported by SetSessionState.
var sessionStates = []string{"disconnected", "connecting", "connected"}
