package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_messages_total", Help: "Raw messages received from the round stream"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Stream reconnect attempts"},
	)
	ParseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "parse_failures_total", Help: "Payloads rejected by the interpreter"},
		[]string{"reason"},
	)
	DuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "duplicate_rounds_total", Help: "Rounds dropped by the dedup guard"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals derived from round results"},
		[]string{"size", "parity"},
	)
	DeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "deliveries_total", Help: "Signals accepted by the push endpoint"},
	)
	DeliveryRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "delivery_retries_total", Help: "Delivery attempts retried"},
	)
	DeliveryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "delivery_failures_total", Help: "Signals undelivered after all attempts"},
	)
	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "heartbeats_total", Help: "Heartbeats accepted by the status endpoint"},
	)
	NotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Telegram notifications sent"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ReconnectsTotal,
		ParseFailuresTotal,
		DuplicatesTotal,
		SignalsTotal,
		DeliveriesTotal,
		DeliveryRetriesTotal,
		DeliveryFailuresTotal,
		HeartbeatsTotal,
		NotificationsTotal,
	)
}

// Serve exposes /metrics (and /healthz when a handler is supplied) on addr.
func Serve(addr string, health http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if health != nil {
		mux.HandleFunc("/healthz", health)
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
