package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the provisioning binaries.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	provisionTotal    *prometheus.CounterVec
	provisionDuration *prometheus.HistogramVec
	lastRun           prometheus.Gauge
}

// NewMetrics initialises the registry with the HTTP and provisioning metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffprov_http_requests_total",
		Help: "HTTP requests served by the ops endpoint, by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staffprov_http_request_duration_seconds",
		Help:    "Ops endpoint request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	provisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffprov_provision_total",
		Help: "Provisioned profiles by terminal status.",
	}, []string{"status"})
	provisionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staffprov_provision_duration_seconds",
		Help:    "Wall time spent provisioning one profile.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"status"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "staffprov_last_provision_timestamp_seconds",
		Help: "Unix time of the most recently finished profile.",
	})
	registry.MustRegister(requests, duration, provisions, provisionDuration, lastRun)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		provisionTotal:    provisions,
		provisionDuration: provisionDuration,
		lastRun:           lastRun,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveProvision records the outcome of one profile.
func (m *Metrics) ObserveProvision(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.provisionTotal.WithLabelValues(status).Inc()
	m.provisionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	m.lastRun.SetToCurrentTime()
}

// Middleware records request count and latency per chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for collectors owned by other packages.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
