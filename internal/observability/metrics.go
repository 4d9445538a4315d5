package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "service_dispatch", Name: "dispatches_total", Help: "Requests submitted and broadcast"})
	BroadcastCandidates = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "service_dispatch", Name: "broadcast_candidates", Help: "Candidates per broadcast", Buckets: []float64{0, 1, 2, 5, 10, 20}})
	ClaimsTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "service_dispatch", Name: "claims_total", Help: "Successful request claims"})
	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "service_dispatch", Name: "claim_conflicts_total", Help: "Claims lost to a concurrent provider"})
	SettlementsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "service_dispatch", Name: "settlements_total", Help: "Completed-request settlements"})
	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "service_dispatch", Name: "notify_failures_total", Help: "Notification intents that failed to deliver"})

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "service_dispatch", Name: "transitions_total", Help: "Lifecycle transitions applied"},
		[]string{"target"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "service_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "service_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
