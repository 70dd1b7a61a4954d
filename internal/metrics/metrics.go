package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goldline/ratedesk/pkg/model"
)

var (
	// Outbound calls to the rate, gold, trade and party APIs.
	FeedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratedesk_feed_requests_total",
			Help: "Total number of upstream API requests (by feed and status).",
		},
		[]string{"feed", "status"},
	)

	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratedesk_feed_request_duration_seconds",
			Help:    "Duration of upstream API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"feed"},
	)

	FeedRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratedesk_feed_retries_total",
			Help: "Number of retried upstream requests.",
		},
		[]string{"feed"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratedesk_cache_lookups_total",
			Help: "Rate cache lookups by result.",
		},
		[]string{"result"}, // fresh | stale | miss
	)

	UnsupportedPairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratedesk_unsupported_pairs_total",
			Help: "Pairs that could not be derived from the pivot set.",
		},
		[]string{"base"},
	)

	SnapshotAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratedesk_snapshot_age_seconds",
			Help: "Age of the snapshot last served per base currency.",
		},
		[]string{"base"},
	)

	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratedesk_trades_total",
			Help: "Trade mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time since start on a histogram or summary.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// IncUnsupported matches derive.WithUnsupportedHook.
func IncUnsupported(base, _ model.CurrencyCode) {
	UnsupportedPairs.WithLabelValues(string(base)).Inc()
}

func SetSnapshotAge(base model.CurrencyCode, age time.Duration) {
	SnapshotAge.WithLabelValues(string(base)).Set(age.Seconds())
}

// ObserveTrade matches ledger.Observer.
func ObserveTrade(op model.TradeOp, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TradesTotal.WithLabelValues(string(op), result).Inc()
}

// FeedObserver feeds executor outcomes into the feed metrics.
type FeedObserver struct{}

func (FeedObserver) ObserveRequest(feed, status string, elapsed time.Duration) {
	FeedRequestsTotal.WithLabelValues(feed, status).Inc()
	FeedRequestDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
}

func (FeedObserver) IncRetry(feed string) {
	FeedRetriesTotal.WithLabelValues(feed).Inc()
}
