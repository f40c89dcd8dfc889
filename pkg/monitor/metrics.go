package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Error kinds used as the "kind" label of hcsr04_cycle_errors_total.
const (
	KindWrite  = "write"
	KindRead   = "read"
	KindDecode = "decode"
	KindOther  = "other"
)

type Metrics struct {
	registry *prometheus.Registry

	Cycles       *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	LastDistance prometheus.Gauge
	Duration     prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hcsr04_cycles_total",
			Help: "Completed ranging cycles by reported status",
		}, []string{"status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hcsr04_cycle_errors_total",
			Help: "Failed ranging cycles by failure kind",
		}, []string{"kind"}),
		LastDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hcsr04_last_distance_cm",
			Help: "Distance of the most recent successful measurement",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hcsr04_cycle_duration_seconds",
			Help:    "Time from start command to decoded response",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.Cycles, m.Errors, m.LastDistance, m.Duration)
	return m
}

// ErrorKind classifies a cycle error for the errors counter.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ranging.ErrChannelWrite):
		return KindWrite
	case errors.Is(err, ranging.ErrChannelRead):
		return KindRead
	case errors.Is(err, ranging.ErrProtocolDecode):
		return KindDecode
	default:
		return KindOther
	}
}

// Observe records one cycle. A nil Metrics ignores the call.
func (m *Metrics) Observe(r sensor.Reading, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
	if err != nil {
		m.Errors.WithLabelValues(ErrorKind(err)).Inc()
		return
	}
	m.Cycles.WithLabelValues(r.Status.String()).Inc()
	if cm, ok := r.Result().Distance(); ok {
		m.LastDistance.Set(cm)
	}
}

// Handler serves /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics HTTP server until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
		return srv.Close()
	}
	return nil
}
