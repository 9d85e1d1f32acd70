// Package metrics exposes broker state as Prometheus collectors and serves
// them on a small admin HTTP endpoint.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_connections_total",
		Help: "Total number of TCP connections accepted",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "natsd_connections_active",
		Help: "Current number of open connections",
	})

	subscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "natsd_subscriptions_active",
		Help: "Current number of trie leaves holding subscriptions",
	})

	messagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_messages_published_total",
		Help: "Total number of PUB frames accepted from clients",
	})

	messagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_messages_delivered_total",
		Help: "Total number of MSG frames handed to a subscriber's write path",
	})

	slowConsumerDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_slow_consumer_drops_total",
		Help: "Total number of subscriptions removed after a failed delivery",
	})

	decodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_decode_errors_total",
		Help: "Total number of fatal protocol decode errors",
	})

	payloadRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "natsd_max_payload_rejected_total",
		Help: "Total number of PUB frames rejected for exceeding max_payload",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsActive,
		subscriptionsActive,
		messagesPublished,
		messagesDelivered,
		slowConsumerDrops,
		decodeErrors,
		payloadRejected,
	)
}

// RecordConnectionOpened increments the connection counters.
func RecordConnectionOpened() {
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

// RecordConnectionClosed decrements the active connection gauge.
func RecordConnectionClosed() {
	connectionsActive.Dec()
}

// SetSubscriptionCount sets the subscription gauge to the router's current count.
func SetSubscriptionCount(n int) {
	subscriptionsActive.Set(float64(n))
}

// RecordPublish records one accepted PUB frame.
func RecordPublish() {
	messagesPublished.Inc()
}

// RecordDeliveries adds n successful MSG deliveries.
func RecordDeliveries(n int) {
	messagesDelivered.Add(float64(n))
}

// RecordSlowConsumerDrop records one subscription removed for a failed delivery.
func RecordSlowConsumerDrop() {
	slowConsumerDrops.Inc()
}

// RecordDecodeError records one fatal decode error.
func RecordDecodeError() {
	decodeErrors.Inc()
}

// RecordPayloadRejected records one PUB rejected for exceeding max_payload.
func RecordPayloadRejected() {
	payloadRejected.Inc()
}

// Server serves /metrics on addr until its context is cancelled.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
