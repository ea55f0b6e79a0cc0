package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// WorkerMetrics tracks the map processing pipeline: how each delivered
// map_uploaded event ended, what kind of plan it was and how long it
// waited in the queue.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	lag      prometheus.Observer
	pdfPages prometheus.Observer
	rasterMP prometheus.Observer
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "map_processing", Name: name, Help: help, ConstLabels: constLabels}
	}
	histogram := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		o := opts(name, help)
		return prometheus.HistogramOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem, Name: o.Name, Help: o.Help,
			ConstLabels: o.ConstLabels, Buckets: buckets,
		}
	}

	m := &WorkerMetrics{
		registry: registry,
		service:  service,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("runs_total", "Map processing runs by outcome (ready, failed, skipped, lost_race or an error kind) and file type.")),
			[]string{"outcome", "file_type"},
		),
		duration: prometheus.NewHistogramVec(
			histogram("run_duration_seconds", "Map processing run duration by outcome.", prometheus.DefBuckets),
			[]string{"outcome"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts(opts("in_flight", "Maps currently between processing and a settled status."))),
	}
	lag := prometheus.NewHistogram(histogram("queue_lag_seconds", "Delay between a map upload event being published and picked up.",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}))
	pdfPages := prometheus.NewHistogram(histogram("pdf_pages", "Page count of PDF plans that reached ready.",
		[]float64{1, 2, 5, 10, 25, 50, 100, 250}))
	rasterMP := prometheus.NewHistogram(histogram("raster_megapixels", "Pixel size of raster plans that reached ready, in megapixels.",
		[]float64{1, 4, 16, 36, 64, 144, 256}))
	m.lag, m.pdfPages, m.rasterMP = lag, pdfPages, rasterMP

	registry.MustRegister(m.runs, m.duration, m.inFlight, lag, pdfPages, rasterMP)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Track marks a run as started. The returned func settles it.
func (m *WorkerMetrics) Track() func(res domain.ProcessResult, err error) {
	m.inFlight.Inc()
	started := time.Now()
	return func(res domain.ProcessResult, err error) {
		m.inFlight.Dec()
		label := runOutcome(res, err)
		fileType := string(res.FileType)
		if fileType == "" {
			fileType = "unknown"
		}
		m.runs.WithLabelValues(label, fileType).Inc()
		m.duration.WithLabelValues(label).Observe(time.Since(started).Seconds())
		if res.Outcome == domain.ProcessReady {
			m.observePlanSize(res)
		}
	}
}

func (m *WorkerMetrics) observePlanSize(res domain.ProcessResult) {
	switch res.FileType {
	case domain.FileTypePDF:
		if res.Metadata.PageCount > 0 {
			m.pdfPages.Observe(float64(res.Metadata.PageCount))
		}
	case domain.FileTypeImage:
		if px := res.Metadata.WidthPx * res.Metadata.HeightPx; px > 0 {
			m.rasterMP.Observe(float64(px) / 1e6)
		}
	}
}

// ObserveQueueLag records how long an event waited. Clock skew between
// publisher and worker can make lag negative; those samples are dropped.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.lag.Observe(lag.Seconds())
}

// runOutcome prefers the settled map outcome; runs that ended before the
// map's state was settled are labeled by error kind.
func runOutcome(res domain.ProcessResult, err error) string {
	if res.Outcome != "" {
		return string(res.Outcome)
	}
	return outcome(err)
}
