package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allowance_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_ledger_entries_total",
			Help: "Total number of ledger entries appended",
		},
		[]string{"direction", "bucket", "kind"},
	)

	LedgerAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_ledger_amount_total",
			Help: "Sum of ledger entry amounts in major currency units",
		},
		[]string{"direction", "bucket"},
	)

	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_deposits_total",
			Help: "Total number of committed deposits",
		},
		[]string{"mode"},
	)

	LedgerRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_ledger_rejections_total",
			Help: "Total number of rejected ledger operations",
		},
		[]string{"reason"},
	)

	PlanActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "allowance_plan_activations_total",
			Help: "Total number of budget plan activations",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allowance_notifications_total",
			Help: "Total number of notifications processed",
		},
		[]string{"type", "status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "allowance_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerEntry(direction, bucket, kind string, amount float64) {
	LedgerEntriesTotal.WithLabelValues(direction, bucket, kind).Inc()
	LedgerAmountTotal.WithLabelValues(direction, bucket).Add(amount)
}

func RecordDeposit(mode string) {
	DepositsTotal.WithLabelValues(mode).Inc()
}

func RecordRejection(reason string) {
	LedgerRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordPlanActivation() {
	PlanActivationsTotal.Inc()
}

func RecordNotification(notificationType, status string) {
	NotificationsTotal.WithLabelValues(notificationType, status).Inc()
}

func SetNotificationQueueLength(n int64) {
	NotificationQueueLength.Set(float64(n))
}
