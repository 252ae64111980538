// Package httpx contains the HTTP delivery layer (net/http handlers) for the
// metric service. It maps HTTP requests to the query dispatcher while
// enforcing signature verification, validation, size limits and error
// translation. Handlers are split across files (listmetrics.go, auth.go,
// health.go, errors.go).
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxisys/utapi/internal/lister"
	"github.com/voxisys/utapi/schema"
)

// APIVersion is the query API version this service answers. Requests name
// it verbatim in the Version query parameter.
const APIVersion = "20160815"

// DefaultMaxBody caps request bodies when the Handler does not override it.
// A query naming thousands of resources still fits with room to spare.
const DefaultMaxBody = 1 << 20

// familyLevels maps URL path families onto granularities.
var familyLevels = map[string]schema.Level{
	"buckets":  schema.LevelBucket,
	"accounts": schema.LevelAccount,
	"service":  schema.LevelService,
}

// MetricsPort abstracts the subset of the query dispatcher used by the HTTP
// layer. It is satisfied by *lister.Dispatcher in production and mocked in
// tests.
type MetricsPort interface {
	ListMetrics(ctx context.Context, level schema.Level, resources []string, start, end int64) ([]lister.Metrics, error)
}

// Handler wires HTTP endpoints to the metric engine.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Metrics   MetricsPort
	Verifier  *SigV4Verifier
	Readiness func(context.Context) error // optional readiness probe
	Log       *slog.Logger
	MaxBody   int64 // request body cap in bytes (<= 0 means DefaultMaxBody)
}

// New returns a configured Handler.
// metrics: the query dispatcher port. verifier: checks request signatures.
// readiness: optional probe function for /readyz (nil => always ready).
func New(metrics MetricsPort, verifier *SigV4Verifier, readiness func(context.Context) error, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Metrics:   metrics,
		Verifier:  verifier,
		Readiness: readiness,
		Log:       log.With("domain", "http"),
		MaxBody:   DefaultMaxBody,
	}
}

// Router constructs and returns an http.Handler with all routes mounted and
// the shared middleware applied.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/{family:buckets|accounts|service}", h.handleListMetrics).
		Methods(http.MethodPost).
		Queries("Action", "ListMetrics", "Version", APIVersion)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(h.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.handleMethodNotAllowed)
	return RequestIDMiddleware(h.logRequests(h.plainHeaders(r)))
}

// plainHeaders middleware pins the response hygiene headers: metric data is
// never cacheable and never sniffed.
func (h *Handler) plainHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(r.Context(), w, http.StatusNotFound, "not found")
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(r.Context(), w, http.StatusMethodNotAllowed, "method not allowed")
}
