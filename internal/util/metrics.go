package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommissionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissions_recorded_total",
		Help: "Total number of commission records created",
	})

	CommissionsCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissions_collected_total",
		Help: "Total number of commissions marked collected",
	})

	CommissionAmountCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_amount_cents_total",
		Help: "Total commission amount recorded, in cents",
	})

	CartSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_splits_total",
		Help: "Total number of carts split by vendor",
	})

	CartSplitsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_splits_failed_total",
		Help: "Total number of failed cart splits",
	}, []string{"reason"})

	RoutingRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routing_requests_total",
		Help: "Total number of fulfillment routing requests",
	})

	RoutingFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_failed_total",
		Help: "Total number of failed routing requests",
	}, []string{"reason"})

	RoutingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "routing_duration_seconds",
		Help:    "Latency of fulfillment routing",
		Buckets: prometheus.DefBuckets,
	})

	RoutingLocationsEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "routing_locations_evaluated",
		Help:    "Number of candidate locations scored per routing request",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	PayoutsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_created_total",
		Help: "Total number of payouts created",
	})

	PayoutsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_processed_total",
		Help: "Total number of payouts submitted to the gateway successfully",
	})

	PayoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_failed_total",
		Help: "Total number of failed payouts",
	}, []string{"reason"})

	PayoutAmountCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_amount_cents_total",
		Help: "Total payout amount submitted, in cents",
	})

	BatchPayoutVendorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_payout_vendors_total",
		Help: "Batch payout per-vendor outcomes",
	}, []string{"outcome"})

	GatewayTransferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_transfer_latency_seconds",
		Help:    "Latency of payment gateway transfers",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment gateway webhook events by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
