// Package metrics defines the prometheus collectors for crawling and search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes.
const (
	OutcomeIndexed   = "indexed"
	OutcomeBadStatus = "bad_status"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds all sitesearch collectors.
type Metrics struct {
	PagesFetched    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	SessionsRunning prometheus.Gauge
	SearchRequests  *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		PagesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_pages_fetched_total",
				Help: "Pages processed by the crawler, by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitesearch_fetch_duration_seconds",
				Help:    "Duration of page fetches",
				Buckets: prometheus.DefBuckets,
			},
		),
		SessionsRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_crawl_sessions_running",
				Help: "1 while a crawl-all session is in progress",
			},
		),
		SearchRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_search_requests_total",
				Help: "Search requests, by outcome",
			},
			[]string{"outcome"},
		),
		SearchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitesearch_search_duration_seconds",
				Help:    "Duration of search requests",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
