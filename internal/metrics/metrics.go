package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	Checkouts     *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	OutboxEvents  *prometheus.CounterVec
}

// New registers the storefront collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by payment method and result.",
		}, []string{"payment_method", "result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment webhook events by type and result.",
		}, []string{"type", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Order notifications by kind and result.",
		}, []string{"kind", "result"}),
		OutboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Outbox events handed to Kafka by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.WebhookEvents, m.Notifications, m.OutboxEvents)
	return m
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveCheckout(method, result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(method, result).Inc()
}

func (m *Metrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ObserveNotification(kind, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveOutbox(eventType, result string) {
	if m == nil {
		return
	}
	m.OutboxEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ObserveRequest(handler, status string, latencyMS float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, status).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(latencyMS)
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
