// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "orders_created_total",
		Help:      "Orders persisted, excluding idempotent replays.",
	})
	OrdersReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "orders_replayed_total",
		Help:      "Order submissions answered from an existing client reference.",
	})
	OrderNumberConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "order_number_conflicts_total",
		Help:      "Order creations retried after an order number collision.",
	})
	SalesAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "sales_amount_total",
		Help:      "Sum of order totals in minor currency units.",
	})
	SummaryRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "sales_summary_rebuilds_total",
		Help:      "Sales summary rebuilds by scope and trigger.",
	}, []string{"scope", "trigger"})
	SummaryOnDemandDays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "sales_summary_on_demand_days_total",
		Help:      "Summary days computed from orders because no stored row existed.",
	})
	PriceRecalculations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "recipe_price_recalculations_total",
		Help:      "Recipe cost and sell price recalculations.",
	})
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cafe",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cafe",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
