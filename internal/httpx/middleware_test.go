package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDGenerated(t *testing.T) {
	var fromCtx string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fromCtx, _ = GetRequestID(r.Context())
	})

	rr := httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rid := rr.Header().Get(RequestIDHeader)
	if rid == "" {
		t.Fatal("expected a generated request id")
	}
	if _, err := uuid.Parse(rid); err != nil {
		t.Fatalf("generated id %q is not a UUID: %v", rid, err)
	}
	assert.Equal(t, rid, fromCtx)
}

func TestRequestIDPropagated(t *testing.T) {
	var fromCtx string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fromCtx, _ = GetRequestID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")

	rr := httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", fromCtx)
}

func TestGetRequestIDAbsent(t *testing.T) {
	rid, ok := GetRequestID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, rid)
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/buckets":    "/buckets",
		"/accounts":   "/accounts",
		"/service":    "/service",
		"/healthz":    "/healthz",
		"/readyz":     "/readyz",
		"/metrics":    "/metrics",
		"/admin":      "other",
		"/buckets/x":  "other",
		"/":           "other",
		"/BUCKETS":    "other",
		"/..%2fadmin": "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, routeLabel(path), "path %q", path)
	}
}

func TestStatusRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: rr, status: http.StatusOK}

	rec.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, rec.status)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
