package telemetry

import (
	"context"
	"net/http"
	"time"

	"callmon-api/internal/callsync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NewPrometheusRegistry creates a registry with the standard process
// and Go runtime collectors pre-registered.
func NewPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// SyncObserver exports synchronization and ticketing metrics. It
// implements the engine's observer and the ticket service's recorder
// so one instance covers both. The OTel metrics are optional and are
// forwarded to when configured.
type SyncObserver struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	retainedCalls   prometheus.Gauge
	activeCalls     prometheus.Gauge
	inconsistencies prometheus.Counter
	ticketsCreated  prometheus.Counter

	otel *Metrics // may be nil
}

// NewSyncObserver registers the sync metrics on reg.
func NewSyncObserver(reg prometheus.Registerer, otel *Metrics) *SyncObserver {
	o := &SyncObserver{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Total number of synchronization cycles by outcome.",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Synchronization cycle duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		retainedCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "call_log_retained_calls",
			Help: "Number of calls currently retained in the log.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "call_log_active_calls",
			Help: "Number of calls currently in progress.",
		}),
		inconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "data_inconsistencies_total",
			Help: "Conflicting terminal outcomes reported by the phone system.",
		}),
		ticketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Tickets created from calls.",
		}),
		otel: otel,
	}

	reg.MustRegister(
		o.cycles,
		o.cycleDuration,
		o.retainedCalls,
		o.activeCalls,
		o.inconsistencies,
		o.ticketsCreated,
	)
	return o
}

// CycleCompleted records one cycle outcome and the snapshot gauges.
func (o *SyncObserver) CycleCompleted(ctx context.Context, d time.Duration, err error, snap *callsync.Snapshot) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.cycles.WithLabelValues(status).Inc()
	o.cycleDuration.Observe(d.Seconds())

	if snap != nil {
		o.retainedCalls.Set(float64(len(snap.Calls)))
		o.activeCalls.Set(float64(len(snap.Active)))
	}

	if o.otel != nil {
		o.otel.SyncCyclesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
		o.otel.SyncCycleDuration.Record(ctx, d.Seconds())
	}
}

// InconsistenciesObserved counts conflicting terminal outcomes.
func (o *SyncObserver) InconsistenciesObserved(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	o.inconsistencies.Add(float64(n))
	if o.otel != nil {
		o.otel.DataInconsistencies.Add(ctx, int64(n))
	}
}

// TicketCreated counts one successful ticket creation.
func (o *SyncObserver) TicketCreated(ctx context.Context) {
	o.ticketsCreated.Inc()
	if o.otel != nil {
		o.otel.TicketsCreated.Add(ctx, 1)
	}
}

// MetricsHandler serves the registry. With a non-empty token the
// endpoint requires either "Authorization: Bearer <token>" or an
// "X-Metrics-Token" header; without one it is open, which suits
// scrape setups inside a private network.
func MetricsHandler(reg *prometheus.Registry, token string) http.Handler {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	if token == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Metrics-Token") != token &&
			r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("unauthorized"))
			return
		}
		handler.ServeHTTP(w, r)
	})
}
