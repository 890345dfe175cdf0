// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics is the engine's prometheus surface. A nil *metrics is valid
// and records nothing.
type metrics struct {
	swapsTotal    *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	quoteMisses   *prometheus.CounterVec
	swapDurations prometheus.Histogram
}

// NewMetrics registers the engine metrics on reg. A nil registerer
// returns nil, which disables collection.
func NewMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &metrics{
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swaprouter",
			Name:      "swaps_total",
			Help:      "Completed swaps by backend kind",
		}, []string{"kind"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swaprouter",
			Name:      "swap_fallbacks_total",
			Help:      "Swaps completed on the configured-slippage fallback path",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swaprouter",
			Name:      "swap_failures_total",
			Help:      "Terminally failed swaps by backend kind",
		}, []string{"kind"}),
		quoteMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swaprouter",
			Name:      "quote_misses_total",
			Help:      "Primary attempts abandoned for lack of a usable quote",
		}, []string{"kind"}),
		swapDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swaprouter",
			Name:      "swap_duration_seconds",
			Help:      "End-to-end swap latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{
		m.swapsTotal, m.fallbacks, m.failures, m.quoteMisses, m.swapDurations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) swapDone(kind BackendKind, fellBack bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(kind.String()).Inc()
	if fellBack {
		m.fallbacks.WithLabelValues(kind.String()).Inc()
	}
	m.swapDurations.Observe(elapsed.Seconds())
}

func (m *metrics) swapFailed(kind BackendKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind.String()).Inc()
}

func (m *metrics) quoteInvalid(kind BackendKind) {
	if m == nil {
		return
	}
	m.quoteMisses.WithLabelValues(kind.String()).Inc()
}
