package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	studiesQueuedTotal  *prometheus.CounterVec
	projectsCreated     *prometheus.CounterVec
	queueRejectionTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	studiesQueuedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "studies_queued_total",
			Help:      "Total studies accepted for preparation.",
		},
		[]string{"service"},
	)
	projectsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "projects_created_total",
			Help:      "Total annotation projects created through the API.",
		},
		[]string{"service"},
	)
	queueRejectionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "http",
			Name:      "traffic_rejections_total",
			Help:      "Requests rejected by the rate limiter or backpressure gate.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		studiesQueuedTotal,
		projectsCreated,
		queueRejectionTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		studiesQueuedTotal:  studiesQueuedTotal,
		projectsCreated:     projectsCreated,
		queueRejectionTotal: queueRejectionTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/studies/"):
		return "/v1/studies/{task_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordStudyQueued(service string) {
	m.studiesQueuedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordProjectCreated(service string) {
	m.projectsCreated.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordTrafficRejection(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.queueRejectionTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
