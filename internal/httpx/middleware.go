package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxisys/utapi/internal/telemetry"
)

// requestIDCtxKey is the unexported context key type to avoid collisions.
// We intentionally use a private struct{} key rather than a string to
// prevent accidental overwrites from other packages.
type requestIDCtxKey struct{}

var ridKey = requestIDCtxKey{}

// RequestIDHeader is the HTTP header used for inbound/outbound request ids.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware injects a per-request id into the request context and
// response headers. If the incoming request already supplies X-Request-Id
// it is trusted; if absent a new UUID v4 is generated. Downstream handlers
// retrieve the value via GetRequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), ridKey, rid)
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request id from the context. The second boolean
// return reports whether a value was present.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ridKey).(string)
	return id, ok
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests emits one access log line per request and feeds the request
// counter.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		began := time.Now()
		next.ServeHTTP(rec, r)

		telemetry.HTTPRequests.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()
		rid, _ := GetRequestID(r.Context())
		h.Log.Info("request handled",
			"requestId", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"ms", time.Since(began).Milliseconds(),
		)
	})
}

// routeLabel collapses request paths onto a fixed label set so arbitrary
// probing cannot inflate the metric cardinality.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return path
	}
	if _, ok := familyLevels[strings.TrimPrefix(path, "/")]; ok {
		return path
	}
	return "other"
}
