package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	WebhookEvents     *prometheus.CounterVec
	OrdersCreated     prometheus.Counter
	OrdersDuplicate   prometheus.Counter
	ReconcileFailures prometheus.Counter
	CheckoutSessions  prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cafe_webhook_events_total"}, []string{"type"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "cafe_orders_created_total"})
	ordersDuplicate := prometheus.NewCounter(prometheus.CounterOpts{Name: "cafe_orders_duplicate_total"})
	reconcileFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "cafe_reconcile_failures_total"})
	checkoutSessions := prometheus.NewCounter(prometheus.CounterOpts{Name: "cafe_checkout_sessions_total"})

	r.MustRegister(webhookEvents, ordersCreated, ordersDuplicate, reconcileFailures, checkoutSessions)
	return &Registry{
		reg:               r,
		WebhookEvents:     webhookEvents,
		OrdersCreated:     ordersCreated,
		OrdersDuplicate:   ordersDuplicate,
		ReconcileFailures: reconcileFailures,
		CheckoutSessions:  checkoutSessions,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
