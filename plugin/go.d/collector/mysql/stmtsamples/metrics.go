// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "stmtsamples"

type samplerMetrics struct {
	collectDuration prometheus.Histogram
	fetchDuration   *prometheus.HistogramVec
	fetchRows       *prometheus.HistogramVec
	eventsSubmitted *prometheus.CounterVec
	cacheEntries    *prometheus.GaugeVec
	explainDuration prometheus.Histogram
	errors          *prometheus.CounterVec
	inactiveStops   prometheus.Counter
}

func newSamplerMetrics(reg prometheus.Registerer) (*samplerMetrics, error) {
	mx := &samplerMetrics{
		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "collect_duration_seconds",
			Help:      "Duration of a statement sample collection cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the events_statements fetch query.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"table"}),
		fetchRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_rows",
			Help:      "Rows returned by the events_statements fetch query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"table"}),
		eventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_submitted_total",
			Help:      "Statement sample events handed to the submitter.",
		}, []string{"table"}),
		cacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cache_entries",
			Help:      "Entries held by the sampler suppression caches.",
		}, []string{"cache"}),
		explainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "explain_duration_seconds",
			Help:      "Duration of a single statement plan collection.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Sampler errors by kind.",
		}, []string{"error"}),
		inactiveStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loop_inactive_stops_total",
			Help:      "Collection loop exits caused by host check inactivity.",
		}),
	}

	if reg == nil {
		return mx, nil
	}

	for _, c := range []prometheus.Collector{
		mx.collectDuration,
		mx.fetchDuration,
		mx.fetchRows,
		mx.eventsSubmitted,
		mx.cacheEntries,
		mx.explainDuration,
		mx.errors,
		mx.inactiveStops,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return mx, nil
}

func (mx *samplerMetrics) countError(kind string, n int) {
	if n > 0 {
		mx.errors.WithLabelValues(kind).Add(float64(n))
	}
}
