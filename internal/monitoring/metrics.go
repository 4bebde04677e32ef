// Package monitoring exposes livecode's Prometheus metrics.
package monitoring

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livecode"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Engine metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	ActionsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Lesson metrics
	LessonsLoaded prometheus.Gauge
	LessonReloads prometheus.Counter
}

// NewMetrics creates the metrics on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"route"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Editor runs by language and outcome",
			},
			[]string{"language", "outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Time spent preparing a preview frame",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"language"},
		),
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Editor control actions by outcome",
			},
			[]string{"action", "outcome"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of open page sessions",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of connected websocket clients",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Websocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		LessonsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lessons_loaded",
				Help:      "Number of lessons being served",
			},
		),
		LessonReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lesson_reloads_total",
				Help:      "Lesson reloads triggered by file changes",
			},
		),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records one sandbox run.
func (m *Metrics) ObserveRun(language, outcome string, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(language, outcome).Inc()
	m.RunDuration.WithLabelValues(language).Observe(elapsed.Seconds())
}

// ObserveAction records one dispatched control action.
func (m *Metrics) ObserveAction(action, outcome string) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// SetActiveSessions sets the open session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.SessionsActive.Set(float64(n))
}

// ClientConnected tracks a websocket client joining.
func (m *Metrics) ClientConnected() { m.WSConnections.Inc() }

// ClientDisconnected tracks a websocket client leaving.
func (m *Metrics) ClientDisconnected() { m.WSConnections.Dec() }

// ObserveMessage counts one websocket message; direction is "in" or "out".
func (m *Metrics) ObserveMessage(direction, typ string) {
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

// SetLessons sets the loaded lesson gauge.
func (m *Metrics) SetLessons(n int) { m.LessonsLoaded.Set(float64(n)) }

// LessonReloaded counts one hot reload.
func (m *Metrics) LessonReloaded() { m.LessonReloads.Inc() }

// Instrument wraps next, recording request counts and latency under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
