package metrics

import (
	"net/http"
	"time"
)

// NopMetrics discards everything. Use it when metrics are disabled.
type NopMetrics struct{}

// NewNopMetrics creates a NopMetrics.
func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (m *NopMetrics) IncConnectAttempts(result string)       {}
func (m *NopMetrics) SetSessionState(state string)           {}
func (m *NopMetrics) IncRefreshes(result string)             {}
func (m *NopMetrics) ObserveRefreshDuration(d time.Duration) {}
func (m *NopMetrics) IncTransactions(kind, status string)    {}
func (m *NopMetrics) SetTransacting(active bool)             {}
func (m *NopMetrics) IncQuotes(result string)                {}
func (m *NopMetrics) Handler() http.Handler                  { return nil }

var _ Metrics = (*NopMetrics)(nil)
