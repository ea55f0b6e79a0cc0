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

const namespace = "takeoff"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	calibrationsTotal        *prometheus.CounterVec
	invalidatedMeasurements  *prometheus.CounterVec
	measurementsTotal        *prometheus.CounterVec
	estimatesTotal           *prometheus.CounterVec
	estimateSuggestionsItems *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	calibrationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "requests_total",
			Help:      "Calibration attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	invalidatedMeasurements := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "deleted_measurements_total",
			Help:      "Measurements deleted by forced recalibration.",
		},
		[]string{"service"},
	)
	measurementsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "measurement",
			Name:      "created_total",
			Help:      "Measurement create attempts by type and outcome.",
		},
		[]string{"service", "type", "outcome"},
	)
	estimatesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimate",
			Name:      "operations_total",
			Help:      "Estimate operations by kind and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	estimateSuggestionsItems := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimate",
			Name:      "suggested_items",
			Help:      "Cost items produced per rule evaluation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		calibrationsTotal,
		invalidatedMeasurements,
		measurementsTotal,
		estimatesTotal,
		estimateSuggestionsItems,
	)

	return &HTTPServerMetrics{
		registry:                 registry,
		requestTotal:             requestTotal,
		requestDuration:          requestDuration,
		requestInFlight:          requestInFlight,
		calibrationsTotal:        calibrationsTotal,
		invalidatedMeasurements:  invalidatedMeasurements,
		measurementsTotal:        measurementsTotal,
		estimatesTotal:           estimatesTotal,
		estimateSuggestionsItems: estimateSuggestionsItems,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
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

// collections whose next path segment is an identifier.
var idCollections = map[string]string{
	"projects":     "{projectId}",
	"maps":         "{mapId}",
	"measurements": "{measurementId}",
	"estimates":    "{estimateId}",
}

// literal segments that follow a collection name but are not identifiers.
var routeLiterals = map[string]bool{
	"summary":           true,
	"from-measurements": true,
}

// normalizePath collapses identifiers so label cardinality stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/") {
		return path
	}
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	for i := 1; i < len(parts); i++ {
		placeholder, ok := idCollections[parts[i-1]]
		if !ok || parts[i] == "" || routeLiterals[parts[i]] {
			continue
		}
		parts[i] = placeholder
	}
	return strings.Join(parts, "/")
}

func (m *HTTPServerMetrics) RecordCalibration(service string, deletedMeasurements int, err error) {
	m.calibrationsTotal.WithLabelValues(service, outcome(err)).Inc()
	if err == nil && deletedMeasurements > 0 {
		m.invalidatedMeasurements.WithLabelValues(service).Add(float64(deletedMeasurements))
	}
}

func (m *HTTPServerMetrics) RecordMeasurement(service, measurementType string, err error) {
	if measurementType == "" {
		measurementType = "unknown"
	}
	m.measurementsTotal.WithLabelValues(service, measurementType, outcome(err)).Inc()
}

func (m *HTTPServerMetrics) RecordEstimate(service, operation string, err error) {
	m.estimatesTotal.WithLabelValues(service, operation, outcome(err)).Inc()
}

func (m *HTTPServerMetrics) RecordSuggestion(service string, items int) {
	m.estimateSuggestionsItems.WithLabelValues(service).Observe(float64(items))
}

// outcome buckets an error into a low-cardinality label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := errorKind(err); kind != "" {
		return kind
	}
	return "error"
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
