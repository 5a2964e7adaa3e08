package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookDeliveriesTotal,
		webhookQueueDepth,
	)
}

var (
	// Delivery attempts by event name and outcome.
	// outcome: delivered|retried|dropped
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	webhookQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_depth",
			Help: "Events waiting in the webhook dispatch queue.",
		},
	)
)

func IncWebhookDelivery(event, outcome string) {
	webhookDeliveriesTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}

func SetWebhookQueueDepth(n int) {
	webhookQueueDepth.Set(float64(n))
}
