package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	prepareTotal    *prometheus.CounterVec
	prepareDuration *prometheus.HistogramVec
	prepareInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	viewsCropped  *prometheus.CounterVec
	tasksUploaded *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	prepareTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "worker",
			Name:      "study_prepare_total",
			Help:      "Total prepared studies by status.",
		},
		[]string{"service", "status"},
	)
	prepareDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mammo",
			Subsystem: "worker",
			Name:      "study_prepare_duration_seconds",
			Help:      "Study preparation duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	prepareInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mammo",
			Subsystem: "worker",
			Name:      "study_prepare_in_flight",
			Help:      "Number of studies currently being prepared.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mammo",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between study enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	viewsCropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "pipeline",
			Name:      "views_cropped_total",
			Help:      "Total per-view crops produced.",
		},
		[]string{"service"},
	)
	tasksUploaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mammo",
			Subsystem: "pipeline",
			Name:      "tasks_uploaded_total",
			Help:      "Total annotation tasks uploaded to the annotation tool.",
		},
		[]string{"service"},
	)
	registry.MustRegister(
		prepareTotal,
		prepareDuration,
		prepareInFlight,
		queueLag,
		viewsCropped,
		tasksUploaded,
	)

	return &WorkerMetrics{
		registry:        registry,
		prepareTotal:    prepareTotal,
		prepareDuration: prepareDuration,
		prepareInFlight: prepareInFlight,
		queueLag:        queueLag,
		viewsCropped:    viewsCropped,
		tasksUploaded:   tasksUploaded,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartStudy() {
	m.prepareInFlight.Inc()
}

func (m *WorkerMetrics) FinishStudy(service string, duration time.Duration, err error) {
	m.prepareInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.prepareTotal.WithLabelValues(service, status).Inc()
	m.prepareDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddViewsCropped(service string, n int) {
	if n <= 0 {
		return
	}
	m.viewsCropped.WithLabelValues(service).Add(float64(n))
}

func (m *WorkerMetrics) RecordTaskUploaded(service string) {
	m.tasksUploaded.WithLabelValues(service).Inc()
}
