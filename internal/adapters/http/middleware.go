package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestTraceContextKey struct{}

// requestTrace is filled in by the inner layers (auth, handlers, error
// rendering) and read by the access log once the response is written.
type requestTrace struct {
	mu             sync.Mutex
	actor          string
	route          string
	resources      []any
	errorKind      string
	conflictReason string
	mapStatus      domain.MapStatus
}

func traceFromContext(ctx context.Context) *requestTrace {
	trace, _ := ctx.Value(requestTraceContextKey{}).(*requestTrace)
	return trace
}

func (t *requestTrace) setActor(userID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.actor = userID
	t.mu.Unlock()
}

// resourceKeys names path parameters in the log by the collection they index.
var resourceKeys = map[string]string{
	"projects":     "project_id",
	"maps":         "map_id",
	"measurements": "measurement_id",
	"estimates":    "estimate_id",
}

func (t *requestTrace) addPathValue(pattern, name, value string) {
	if t == nil || value == "" {
		return
	}
	key := resourceKey(pattern, name)
	t.mu.Lock()
	t.route = pattern
	t.resources = append(t.resources, key, value)
	t.mu.Unlock()
}

func resourceKey(pattern, name string) string {
	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		if segment == "{"+name+"}" && i > 0 {
			if key, ok := resourceKeys[segments[i-1]]; ok {
				return key
			}
		}
	}
	return name
}

func (t *requestTrace) setError(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorKind = errorKindLabel(err)
	if conflict, ok := domain.AsConflict(err); ok {
		t.conflictReason = conflict.Reason
		t.mapStatus = conflict.Status
	}
}

func (t *requestTrace) attrs() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []any{"actor", t.actor}
	if t.route != "" {
		out = append(out, "route", t.route)
	}
	out = append(out, t.resources...)
	if t.errorKind != "" {
		out = append(out, "error_kind", t.errorKind)
	}
	if t.conflictReason != "" {
		out = append(out, "conflict_reason", t.conflictReason)
	}
	if t.mapStatus != "" {
		out = append(out, "map_status", t.mapStatus)
	}
	return out
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		trace := &requestTrace{}
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), requestTraceContextKey{}, trace)))

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}
		logAttrs := append([]any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
		}, trace.attrs()...)

		switch {
		case recorder.statusCode >= 500:
			slog.Error("http_request", logAttrs...)
		case recorder.statusCode >= 400:
			slog.Warn("http_request", logAttrs...)
		default:
			slog.Info("http_request", logAttrs...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// Flush lets the map file and workbook downloads stream through the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
