// Package metrics exposes live load-generation counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sweepq/internal/runner"
)

// Collector implements runner.Observer and keeps its own registry so several
// collectors can coexist in one process (and in tests).
type Collector struct {
	registry    *prometheus.Registry
	inFlight    prometheus.Gauge
	requests    *prometheus.CounterVec
	latency     prometheus.Histogram
	concurrency prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sweepq_in_flight_requests",
			Help: "Requests currently in flight",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweepq_requests_total",
			Help: "Requests completed, by result",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweepq_request_duration_seconds",
			Help:    "Latency of successful requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		concurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sweepq_concurrency_level",
			Help: "Concurrency level of the current round",
		}),
	}
	c.registry.MustRegister(c.inFlight, c.requests, c.latency, c.concurrency)
	return c
}

func (c *Collector) RequestStarted(int) {
	c.inFlight.Inc()
}

func (c *Collector) RequestFinished(o runner.Outcome) {
	c.inFlight.Dec()
	if o.Success {
		c.requests.WithLabelValues("success").Inc()
		c.latency.Observe(o.Elapsed.Seconds())
		return
	}
	c.requests.WithLabelValues("failure").Inc()
}

func (c *Collector) SetConcurrency(n int) {
	c.concurrency.Set(float64(n))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
