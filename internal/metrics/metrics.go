// Package metrics exposes notifier counters and the last observed battery
// reading in Prometheus format.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
)

const namespace = "battery_notifier"

// Metrics holds every collector on its own registry.
type Metrics struct {
	reg *prometheus.Registry
	now func() time.Time

	reportsSent      *prometheus.CounterVec
	reportsFailed    *prometheus.CounterVec
	alertsSent       prometheus.Counter
	updatesProcessed prometheus.Counter
	loopErrors       prometheus.Counter
	capacity         prometheus.Gauge
	temperature      prometheus.Gauge
	lastReport       prometheus.Gauge

	lastReportUnix atomic.Int64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		now: time.Now,
		reportsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_sent_total",
			Help:      "Reports delivered to the chat, by kind.",
		}, []string{"kind"}),
		reportsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Reports that could not be delivered after all attempts, by kind.",
		}, []string{"kind"}),
		alertsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critical_alerts_sent_total",
			Help:      "Critical battery alerts delivered.",
		}),
		updatesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_processed_total",
			Help:      "Bot API updates consumed.",
		}),
		loopErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Loop iterations that entered error backoff.",
		}),
		capacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_capacity_percent",
			Help:      "Last observed charge level. -1 when unknown.",
		}),
		temperature: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_temperature_celsius",
			Help:      "Last observed numeric battery temperature.",
		}),
		lastReport: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_report_timestamp_seconds",
			Help:      "Unix time of the last delivered report.",
		}),
	}
}

func (m *Metrics) ReportSent(kind string) {
	m.reportsSent.WithLabelValues(kind).Inc()
	now := m.now().Unix()
	m.lastReport.Set(float64(now))
	m.lastReportUnix.Store(now)
}

func (m *Metrics) ReportFailed(kind string) {
	m.reportsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) AlertSent() {
	m.alertsSent.Inc()
}

func (m *Metrics) UpdatesProcessed(n int) {
	m.updatesProcessed.Add(float64(n))
}

func (m *Metrics) LoopError() {
	m.loopErrors.Inc()
}

// Observe records the gauges for rec. Non-numeric temperatures leave the
// temperature gauge unchanged.
func (m *Metrics) Observe(_ context.Context, rec battery.Record) {
	if pct, ok := rec.CapacityPct(); ok {
		m.capacity.Set(float64(pct))
	} else {
		m.capacity.Set(-1)
	}
	if rec.Temperature.Numeric {
		m.temperature.Set(rec.Temperature.Celsius)
	}
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

type health struct {
	Status     string `json:"status"`
	LastReport int64  `json:"last_report,omitempty"`
}

// Router serves /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health{Status: "ok", LastReport: m.lastReportUnix.Load()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	return r
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
