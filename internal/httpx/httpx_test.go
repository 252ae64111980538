package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/assert"

	"github.com/voxisys/utapi/internal/lister"
	"github.com/voxisys/utapi/schema"
)

const (
	testAccessKey = "AKIDEXAMPLE"
	testSecretKey = "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCreds() map[string]string {
	return map[string]string{testAccessKey: testSecretKey}
}

func i64(n int64) *int64 { return &n }

// signRequest computes the body hash and SigV4 signature the way a real
// client would.
func signRequest(t *testing.T, req *http.Request, body []byte, accessKey, secretKey string, at time.Time) {
	t.Helper()
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	signer := v4.NewSigner()
	creds := aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}
	if err := signer.SignHTTP(context.Background(), creds, req, payloadHash, "s3", "us-east-1", at); err != nil {
		t.Fatalf("sign request: %v", err)
	}
}

// signedPost builds a correctly signed ListMetrics request for family.
func signedPost(t *testing.T, family, body string) *http.Request {
	t.Helper()
	payload := []byte(body)
	req := httptest.NewRequest(http.MethodPost, "/"+family+"?Action=ListMetrics&Version="+APIVersion, bytes.NewReader(payload))
	signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now())
	return req
}

// stubMetrics records the dispatch arguments and answers canned records.
type stubMetrics struct {
	level     schema.Level
	resources []string
	start     int64
	end       int64
	records   []lister.Metrics
	err       error
}

func (s *stubMetrics) ListMetrics(_ context.Context, level schema.Level, resources []string, start, end int64) ([]lister.Metrics, error) {
	s.level = level
	s.resources = resources
	s.start, s.end = start, end
	return s.records, s.err
}

func newStubHandler(stub *stubMetrics) *Handler {
	return New(stub, NewSigV4Verifier(testCreds()), nil, quietLogger())
}

func TestRouterUnknownPath(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRouterUnknownAction(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	payload := []byte(`{"buckets":["b"],"timeRange":[0,1]}`)
	req := httptest.NewRequest(http.MethodPost, "/buckets?Action=GetMetrics&Version="+APIVersion, bytes.NewReader(payload))
	signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now())

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterMissingVersion(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	payload := []byte(`{"buckets":["b"],"timeRange":[0,1]}`)
	req := httptest.NewRequest(http.MethodPost, "/buckets?Action=ListMetrics", bytes.NewReader(payload))
	signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now())

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	req := httptest.NewRequest(http.MethodGet, "/buckets?Action=ListMetrics&Version="+APIVersion, nil)

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouterUnknownFamily(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	req := httptest.NewRequest(http.MethodPost, "/regions?Action=ListMetrics&Version="+APIVersion, strings.NewReader("{}"))

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "utapi_degraded_reads_total")
}

func TestResponseHygieneHeaders(t *testing.T) {
	h := newStubHandler(&stubMetrics{})
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}
