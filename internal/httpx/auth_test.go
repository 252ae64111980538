package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/assert"
)

const validBody = `{"buckets":["b"],"timeRange":[0,1]}`

func listMetricsTarget() string {
	return "/buckets?Action=ListMetrics&Version=" + APIVersion
}

func dispatch(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h := newStubHandler(&stubMetrics{})
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

func TestAuthAcceptsValidSignature(t *testing.T) {
	rr := dispatch(t, signedPost(t, "buckets", validBody))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAuthAllowsExtraSignedHeaders(t *testing.T) {
	payload := []byte(validBody)
	req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
	req.Header.Set("X-Custom-Tag", "reporting")
	signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now())

	rr := dispatch(t, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAuthRejections(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{
			name: "unsigned",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, listMetricsTarget(), strings.NewReader(validBody))
			},
		},
		{
			name: "unknown_access_key",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				signRequest(t, req, payload, "AKIDNOBODY", testSecretKey, time.Now())
				return req
			},
		},
		{
			name: "wrong_secret",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				signRequest(t, req, payload, testAccessKey, "not-the-stored-secret", time.Now())
				return req
			},
		},
		{
			name: "tampered_body",
			req: func(t *testing.T) *http.Request {
				// Signed over one bucket name, delivered with another of
				// the same length.
				signed := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(signed))
				signRequest(t, req, signed, testAccessKey, testSecretKey, time.Now())
				tampered := strings.Replace(validBody, `"b"`, `"c"`, 1)
				req.Body = io.NopCloser(strings.NewReader(tampered))
				return req
			},
		},
		{
			name: "stale_date",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now().Add(-time.Hour))
				return req
			},
		},
		{
			name: "future_date",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now().Add(time.Hour))
				return req
			},
		},
		{
			name: "wrong_region_scope",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				signRequest(t, req, payload, testAccessKey, testSecretKey, time.Now())
				auth := req.Header.Get("Authorization")
				req.Header.Set("Authorization", strings.Replace(auth, "/us-east-1/", "/eu-west-3/", 1))
				return req
			},
		},
		{
			name: "content_type_not_signed",
			req: func(t *testing.T) *http.Request {
				payload := []byte(validBody)
				req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
				sum := sha256.Sum256(payload)
				payloadHash := hex.EncodeToString(sum[:])
				req.Header.Set("X-Amz-Content-Sha256", payloadHash)
				creds := aws.Credentials{AccessKeyID: testAccessKey, SecretAccessKey: testSecretKey}
				if err := v4.NewSigner().SignHTTP(context.Background(), creds, req, payloadHash, "s3", "us-east-1", time.Now()); err != nil {
					t.Fatalf("sign request: %v", err)
				}
				// Added after signing, so not covered by the signature.
				req.Header.Set("Content-Type", "application/json")
				return req
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := dispatch(t, tc.req(t))
			assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), "access denied")
		})
	}
}

func TestVerifyUsesInjectedClock(t *testing.T) {
	at := time.Date(2024, time.May, 6, 10, 30, 0, 0, time.UTC)
	payload := []byte(validBody)
	req := httptest.NewRequest(http.MethodPost, listMetricsTarget(), bytes.NewReader(payload))
	signRequest(t, req, payload, testAccessKey, testSecretKey, at)

	v := NewSigV4Verifier(testCreds())

	v.now = func() time.Time { return at.Add(14 * time.Minute) }
	accessKey, err := v.Verify(req, payload)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	assert.Equal(t, testAccessKey, accessKey)

	v.now = func() time.Time { return at.Add(16 * time.Minute) }
	_, err = v.Verify(req, payload)
	assert.ErrorContains(t, err, "clock skew")
}

func TestParseAuthorization(t *testing.T) {
	header := "AWS4-HMAC-SHA256 " +
		"Credential=AKIDEXAMPLE/20240506/us-east-1/s3/aws4_request, " +
		"SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date, " +
		"Signature=abc123"

	auth, err := parseAuthorization(header)
	if err != nil {
		t.Fatalf("parseAuthorization: %v", err)
	}
	assert.Equal(t, "AKIDEXAMPLE", auth.accessKey)
	assert.Equal(t, "20240506", auth.scopeDate)
	assert.Equal(t, "us-east-1", auth.region)
	assert.Equal(t, "s3", auth.service)
	assert.Equal(t, []string{"content-type", "host", "x-amz-content-sha256", "x-amz-date"}, auth.signedHeaders)
	assert.Equal(t, "abc123", auth.signature)
}

func TestParseAuthorizationRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "empty", header: ""},
		{name: "wrong_scheme", header: "Bearer abc"},
		{name: "sigv2", header: "AWS AKIDEXAMPLE:frJIUN8DYpKDtOLCwo//yllqDzg="},
		{name: "short_scope", header: "AWS4-HMAC-SHA256 Credential=AKID/20240506/us-east-1/aws4_request, SignedHeaders=host, Signature=a"},
		{name: "wrong_terminator", header: "AWS4-HMAC-SHA256 Credential=AKID/20240506/us-east-1/s3/aws4, SignedHeaders=host, Signature=a"},
		{name: "missing_signature", header: "AWS4-HMAC-SHA256 Credential=AKID/20240506/us-east-1/s3/aws4_request, SignedHeaders=host"},
		{name: "unknown_field", header: "AWS4-HMAC-SHA256 Credential=AKID/20240506/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=a, Token=b"},
		{name: "bare_field", header: "AWS4-HMAC-SHA256 Credential"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseAuthorization(tc.header); err == nil {
				t.Fatalf("expected error for %q", tc.header)
			}
		})
	}
}
