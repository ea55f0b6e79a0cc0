package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

const serviceName = "plan-takeoff-api"

// Services groups the inbound ports the router dispatches to.
type Services struct {
	Uploader     ports.MapUploader
	Maps         ports.MapReader
	MapDeleter   ports.MapDeleter
	Calibrator   ports.Calibrator
	Measurements ports.MeasurementService
	Estimates    ports.EstimateService
}

// DomainMetrics records business outcomes next to the HTTP metrics.
type DomainMetrics interface {
	RecordCalibration(service string, deletedMeasurements int, err error)
	RecordMeasurement(service, measurementType string, err error)
	RecordEstimate(service, operation string, err error)
	RecordSuggestion(service string, items int)
}

type Router struct {
	cfg            config.Config
	svc            Services
	metrics        DomainMetrics
	metricsHandler http.Handler
	wrap           func(http.Handler) http.Handler
}

type RouterOption func(*Router)

// WithMetrics records domain counters and serves handler on /metrics.
// wrap instruments every request (HTTPServerMetrics.Middleware).
func WithMetrics(m DomainMetrics, handler http.Handler, wrap func(http.Handler) http.Handler) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
		rt.metricsHandler = handler
		rt.wrap = wrap
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...RouterOption) *Router {
	rt := &Router{cfg: cfg, svc: svc, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler builds the full middleware chain. /healthz and /metrics bypass
// auth, validation and traffic control.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /v1/projects/{projectId}/maps", rt.uploadMap)
	api.HandleFunc("GET /v1/projects/{projectId}/maps", rt.listMaps)
	api.HandleFunc("GET /v1/maps/{id}", rt.getMap)
	api.HandleFunc("GET /v1/maps/{id}/file", rt.downloadMapFile)
	api.HandleFunc("DELETE /v1/maps/{id}", rt.deleteMap)
	api.HandleFunc("PATCH /v1/maps/{id}/calibrate", rt.calibrateMap)

	api.HandleFunc("POST /v1/maps/{id}/measurements", rt.createMeasurement)
	api.HandleFunc("GET /v1/maps/{id}/measurements", rt.listMeasurements)
	api.HandleFunc("GET /v1/measurements/{id}", rt.getMeasurement)
	api.HandleFunc("DELETE /v1/measurements/{id}", rt.deleteMeasurement)

	api.HandleFunc("POST /v1/projects/{projectId}/estimates", rt.createEstimate)
	api.HandleFunc("GET /v1/projects/{projectId}/estimates", rt.listEstimates)
	api.HandleFunc("GET /v1/projects/{projectId}/estimates/summary", rt.estimateSummary)
	api.HandleFunc("POST /v1/projects/{projectId}/estimates/from-measurements", rt.estimateFromMeasurements)
	api.HandleFunc("GET /v1/estimates/{id}", rt.getEstimate)
	api.HandleFunc("PATCH /v1/estimates/{id}", rt.updateEstimate)
	api.HandleFunc("DELETE /v1/estimates/{id}", rt.deleteEstimate)
	api.HandleFunc("GET /v1/estimates/{id}/export", rt.exportEstimate)

	var protected http.Handler = api
	protected = mustRequestValidator().middleware(protected)
	protected = newAuthenticator(rt.cfg.JWTSecret).middleware(protected)
	if rt.cfg.APIRateLimitRPS > 0 {
		protected = rateLimitMiddleware(protected, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.cfg.APIMaxInFlight > 0 {
		protected = backpressureMiddleware(protected, rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait())
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		root.Handle("GET /metrics", rt.metricsHandler)
	}
	root.Handle("/", protected)

	var handler http.Handler = root
	if rt.wrap != nil {
		handler = rt.wrap(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON rejects bodies with trailing content or that cannot be parsed.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validationf("decode request", "request body is required")
		}
		return domain.WrapError(domain.ErrValidation, "decode request", err)
	}
	if dec.More() {
		return domain.Validationf("decode request", "unexpected data after JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) string {
	value := strings.TrimSpace(r.PathValue(name))
	traceFromContext(r.Context()).addPathValue(r.Pattern, name, value)
	return value
}

func logHandlerError(r *http.Request, msg string, err error) {
	slog.Error(msg, "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
}

type noopMetrics struct{}

func (noopMetrics) RecordCalibration(string, int, error)    {}
func (noopMetrics) RecordMeasurement(string, string, error) {}
func (noopMetrics) RecordEstimate(string, string, error)    {}
func (noopMetrics) RecordSuggestion(string, int)            {}
