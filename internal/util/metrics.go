package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channel_reconnects_total",
		Help: "Total number of websocket reconnect attempts",
	})

	ChannelFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_failures_total",
		Help: "Total number of fatal channel failures",
	}, []string{"reason"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_frames_dropped_total",
		Help: "Total number of inbound frames dropped",
	}, []string{"reason"})

	BroadcastsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "separation_broadcasts_applied_total",
		Help: "Total number of broadcast events merged into local state",
	}, []string{"type"})

	ItemMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "separation_item_mutations_total",
		Help: "Total number of item mutation requests",
	}, []string{"result"})

	ItemMutationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "separation_item_mutation_retries_total",
		Help: "Total number of item mutation retries after transient failures",
	})

	CorrectiveRefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "separation_corrective_refetches_total",
		Help: "Total number of full resyncs triggered by failed mutations",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "separation_orders_completed_total",
		Help: "Total number of orders completed",
	})

	ItemMutationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "separation_item_mutation_latency_seconds",
		Help:    "Latency of item mutation round trips",
		Buckets: prometheus.DefBuckets,
	})

	HubConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connections_active",
		Help: "Number of live websocket connections on the hub",
	})

	HubBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_broadcasts_total",
		Help: "Total number of events broadcast by the hub",
	}, []string{"type"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "separation_events_consumed_total",
		Help: "Total number of broker events consumed by the stats worker",
	}, []string{"type"})

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
