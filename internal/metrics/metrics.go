// Package metrics holds the client's Prometheus collectors and the optional /metrics server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics is a per-client set of collectors on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests  *prometheus.CounterVec
	retries   prometheus.Counter
	events    *prometheus.CounterVec
	reconnect prometheus.Counter
	rollbacks *prometheus.CounterVec
}

// New registers the client collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc",
			Name:      "api_requests_total",
			Help:      "REST requests by method and response status.",
		}, []string{"method", "status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sc",
			Name:      "api_retries_total",
			Help:      "Requests retried after a 429 response.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc",
			Name:      "socket_events_total",
			Help:      "Socket events received by event name.",
		}, []string{"event"}),
		reconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sc",
			Name:      "socket_reconnects_total",
			Help:      "Socket reconnects after a dropped connection.",
		}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic cache writes restored after a failed call.",
		}, []string{"op"}),
	}
	m.Registry.MustRegister(m.requests, m.retries, m.events, m.reconnect, m.rollbacks)
	return m
}

// Request counts one REST response; status 0 means a transport failure.
func (m *Metrics) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Retry counts one 429 retry.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Event counts one received socket event.
func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// Reconnect counts one socket reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnect.Inc()
}

// Rollback counts one optimistic rollback for op.
func (m *Metrics) Rollback(op string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(op).Inc()
}

// Router serves /metrics from the registry and a /healthz probe.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	return r
}

// Serve runs the metrics server on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
