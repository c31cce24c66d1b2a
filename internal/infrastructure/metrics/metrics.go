// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamLatency tracks game backend cloud-script calls by function name.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livery",
		Name:      "upstream_request_seconds",
		Help:      "Latency of game backend cloud-script calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"function"})

	// UpstreamRequests counts cloud-script calls by function and result
	// (ok, http_error, timeout, network).
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livery",
		Name:      "upstream_requests_total",
		Help:      "Game backend cloud-script calls by result.",
	}, []string{"function", "result"})

	// Injections counts injection attempts by outcome
	// (success, partial, failed, rejected).
	Injections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livery",
		Name:      "injections_total",
		Help:      "Livery injection attempts by outcome.",
	}, []string{"outcome"})

	// TopupDecisions counts admin decisions on top-ups.
	TopupDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livery",
		Name:      "topup_decisions_total",
		Help:      "Admin decisions on pending top-ups.",
	}, []string{"status"})

	// CatalogItems is the size of the loaded catalog snapshot.
	CatalogItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livery",
		Name:      "catalog_items",
		Help:      "Liveries in the loaded catalog snapshot.",
	})
)
