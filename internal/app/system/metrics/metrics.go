// Package metrics holds the Prometheus collectors for eventhub on a private
// registry. Every method is safe to call on a nil *Metrics so services can be
// built without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OrgLifecycleTotal     *prometheus.CounterVec
	MembershipWritesTotal *prometheus.CounterVec
	ConsistencyTotal      *prometheus.CounterVec
	LeadTransitionsTotal  *prometheus.CounterVec
	SchedulerOpsTotal     *prometheus.CounterVec
	EventCountFailures    prometheus.Counter
	ActiveSessions        prometheus.Gauge

	ServerStartTime prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		OrgLifecycleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_org_lifecycle_total",
			Help: "Organization create/update/delete attempts by outcome.",
		}, []string{"op", "outcome"}),

		MembershipWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_membership_writes_total",
			Help: "Membership double-writes by operation and outcome.",
		}, []string{"op", "outcome"}),

		ConsistencyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_consistency_events_total",
			Help: "Role mirror divergences detected and healed.",
		}, []string{"kind"}),

		LeadTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_lead_transitions_total",
			Help: "Lead status transitions by target status.",
		}, []string{"to"}),

		SchedulerOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_scheduler_notifications_total",
			Help: "Scheduled notification documents created or deleted.",
		}, []string{"op"}),

		EventCountFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventhub_event_count_failures_total",
			Help: "Per-organization event counts that degraded to zero.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventhub_tenancy_sessions",
			Help: "Tenancy sessions currently held in memory.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventhub_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrgLifecycleTotal,
		m.MembershipWritesTotal,
		m.ConsistencyTotal,
		m.LeadTransitionsTotal,
		m.SchedulerOpsTotal,
		m.EventCountFailures,
		m.ActiveSessions,
		m.ServerStartTime,
	)
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOrgLifecycle counts one create/update/delete attempt.
func (m *Metrics) ObserveOrgLifecycle(op string, err error) {
	if m == nil {
		return
	}
	m.OrgLifecycleTotal.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveMembershipWrite counts one assign/remove unit of work.
func (m *Metrics) ObserveMembershipWrite(op string, err error) {
	if m == nil {
		return
	}
	m.MembershipWritesTotal.WithLabelValues(op, outcome(err)).Inc()
}

// IncConsistency counts a detected ("divergence") or repaired ("healed")
// mirror, or a member record completed from defaults ("backfilled").
func (m *Metrics) IncConsistency(kind string) {
	if m == nil {
		return
	}
	m.ConsistencyTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncLeadTransition(to string) {
	if m == nil {
		return
	}
	m.LeadTransitionsTotal.WithLabelValues(to).Inc()
}

// AddSchedulerOps counts notification documents by op ("created", "deleted", "rescheduled").
func (m *Metrics) AddSchedulerOps(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SchedulerOpsTotal.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) IncEventCountFailure() {
	if m == nil {
		return
	}
	m.EventCountFailures.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
