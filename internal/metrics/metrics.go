package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "messbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed status transitions by kind and target status.",
		},
		[]string{"kind", "status"},
	)

	records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Created records by kind.",
		},
		[]string{"kind"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by kind and result (sent, failed, duplicate, dropped).",
		},
		[]string{"kind", "result"},
	)

	subscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Live record subscriptions.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, records, notifications, subscriptions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTransition(kind, status string) {
	transitions.WithLabelValues(kind, status).Inc()
}

func IncRecordCreated(kind string) {
	records.WithLabelValues(kind).Inc()
}

// IncNotification counts a dispatcher outcome.
func IncNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

func SubscriptionOpened() {
	subscriptions.Inc()
}

func SubscriptionClosed() {
	subscriptions.Dec()
}
