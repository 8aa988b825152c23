package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	// Declared as ObserverVec so the curried service label can be applied
	// in MustRegister.
	HTTPRequestDurationSeconds prometheus.ObserverVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	AuthenticationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authentication_attempts_total",
			Help: "Bearer token validations by method and result.",
		},
		[]string{"method", "result"},
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_connections",
			Help: "Currently registered live client channels.",
		},
	)

	NotificationsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications accepted from producers.",
		},
		[]string{"kind", "result"},
	)

	NotificationsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notifications flagged delivered, by path.",
		},
		[]string{"path"},
	)

	PreKeyBundlesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prekey_bundles_fetched_total",
			Help: "Key bundle fetches.",
		},
		[]string{"result"},
	)

	OneTimePreKeysConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "one_time_prekeys_consumed_total",
			Help: "One-time pre-keys atomically claimed by fetches.",
		},
	)

	SenderKeysDistributedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sender_keys_distributed_total",
			Help: "Wrapped sender keys upserted.",
		},
	)

	MessagesRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_relayed_total",
			Help: "Encrypted messages accepted by the relay.",
		},
		[]string{"result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthenticationAttemptsTotal,
		LiveConnections,
		NotificationsPublishedTotal,
		NotificationsDeliveredTotal,
		PreKeyBundlesFetchedTotal,
		OneTimePreKeysConsumedTotal,
		SenderKeysDistributedTotal,
		MessagesRelayedTotal,
	)
}
