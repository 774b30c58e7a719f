package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts webhook deliveries by ingest status.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_webhook_events_total",
		Help: "Webhook deliveries by ingest status (queued, ignored, rejected, rate_limited)",
	}, []string{"status"})

	EnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activityfeed_enqueue_failures_total",
		Help: "Envelopes that could not be written to the queue",
	})

	// Aggregations counts applied merges by publish mode.
	Aggregations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_aggregations_total",
		Help: "Feed record merges by publish mode (INSERT, UPDATE)",
	}, []string{"mode"})

	AggregationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_aggregation_failures_total",
		Help: "Failed merges by outcome (retryable, permanent, panic)",
	}, []string{"status"})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activityfeed_broadcast_failures_total",
		Help: "Merges whose live broadcast could not be published",
	})

	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activityfeed_dead_lettered_total",
		Help: "Queue messages moved to the dead letter stream",
	})

	AggregationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "activityfeed_aggregation_seconds",
		Help:    "Time to merge one envelope into its feed record",
		Buckets: prometheus.DefBuckets,
	})
)

var liveClientsOnce sync.Once

// RegisterLiveClients exposes the websocket client count. Only the first
// call registers; the server has a single hub.
func RegisterLiveClients(count func() int) {
	liveClientsOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "activityfeed_live_clients",
			Help: "Websocket clients connected to the live feed",
		}, func() float64 {
			return float64(count())
		})
	})
}
