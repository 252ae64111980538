package httpx

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// Requests are signed with AWS Signature Version 4 in a fixed scope: the
// only variable parts of the credential scope are the access key and date.
const (
	authScheme     = "AWS4-HMAC-SHA256"
	signingService = "s3"
	signingRegion  = "us-east-1"
	amzDateFormat  = "20060102T150405Z"
	scopeDateFmt   = "20060102"
	maxClockSkew   = 15 * time.Minute
)

// requiredSignedHeaders must be covered by every request's signature, so
// nothing the service relies on can be altered in flight.
var requiredSignedHeaders = []string{
	"content-type",
	"host",
	"x-amz-content-sha256",
	"x-amz-date",
}

// SigV4Verifier authenticates requests by re-deriving their AWS Signature
// Version 4 with the stored secret and comparing against the presented one.
// Credentials are the static access key / secret key pairs from the
// configuration.
type SigV4Verifier struct {
	creds map[string]string
	now   func() time.Time // swappable for tests
}

// NewSigV4Verifier builds a verifier over creds, a map of access key id to
// secret key.
func NewSigV4Verifier(creds map[string]string) *SigV4Verifier {
	return &SigV4Verifier{creds: creds, now: time.Now}
}

// Verify authenticates r against the payload the caller already drained
// from the body, returning the access key id that signed the request. The
// error names the failing check for the log; callers answer every failure
// with the same opaque 403 so a prober cannot tell an unknown key from a
// bad signature.
func (s *SigV4Verifier) Verify(r *http.Request, payload []byte) (string, error) {
	auth, err := parseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	for _, name := range requiredSignedHeaders {
		if !slices.Contains(auth.signedHeaders, name) {
			return "", fmt.Errorf("header %s not signed", name)
		}
	}
	if auth.region != signingRegion || auth.service != signingService {
		return "", fmt.Errorf("unexpected credential scope %s/%s", auth.region, auth.service)
	}

	when, err := time.Parse(amzDateFormat, r.Header.Get("X-Amz-Date"))
	if err != nil {
		return "", fmt.Errorf("bad x-amz-date: %w", err)
	}
	if skew := s.now().Sub(when); skew > maxClockSkew || skew < -maxClockSkew {
		return "", fmt.Errorf("request time %s outside allowed clock skew", when.Format(amzDateFormat))
	}
	if auth.scopeDate != when.UTC().Format(scopeDateFmt) {
		return "", errors.New("credential scope date does not match x-amz-date")
	}

	sum := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(sum[:])
	if !constantEqual(payloadHash, r.Header.Get("X-Amz-Content-Sha256")) {
		return "", errors.New("payload hash mismatch")
	}

	secret, ok := s.creds[auth.accessKey]
	if !ok {
		return "", fmt.Errorf("unknown access key %q", auth.accessKey)
	}

	signature, err := resign(r, auth, secret, payloadHash, when)
	if err != nil {
		return "", err
	}
	if !constantEqual(signature, auth.signature) {
		return "", errors.New("signature mismatch")
	}
	return auth.accessKey, nil
}

// resign reproduces the client's signature: a skeleton request carrying
// exactly the headers the client signed is run through the same SigV4
// signer with the stored secret.
func resign(r *http.Request, auth authorization, secret, payloadHash string, when time.Time) (string, error) {
	sr, err := http.NewRequest(r.Method, r.URL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("rebuild request: %w", err)
	}
	sr.Host = r.Host
	for _, name := range auth.signedHeaders {
		switch name {
		case "host":
			// carried by sr.Host
		case "content-length":
			// the signer derives it from ContentLength, not the header
			sr.ContentLength = r.ContentLength
		default:
			values := r.Header.Values(name)
			if len(values) == 0 {
				values = []string{""}
			}
			for _, v := range values {
				sr.Header.Add(name, v)
			}
		}
	}

	signer := v4.NewSigner()
	creds := aws.Credentials{AccessKeyID: auth.accessKey, SecretAccessKey: secret}
	if err := signer.SignHTTP(r.Context(), creds, sr, payloadHash, signingService, signingRegion, when); err != nil {
		return "", fmt.Errorf("derive signature: %w", err)
	}
	derived, err := parseAuthorization(sr.Header.Get("Authorization"))
	if err != nil {
		return "", fmt.Errorf("parse derived authorization: %w", err)
	}
	return derived.signature, nil
}

// authorization is the parsed form of an AWS4-HMAC-SHA256 Authorization
// header.
type authorization struct {
	accessKey     string
	scopeDate     string
	region        string
	service       string
	signedHeaders []string
	signature     string
}

// parseAuthorization splits an Authorization header into its Credential,
// SignedHeaders and Signature fields.
func parseAuthorization(header string) (authorization, error) {
	var out authorization
	scheme, rest, found := strings.Cut(header, " ")
	if !found || scheme != authScheme {
		return out, errors.New("missing or unsupported authorization scheme")
	}
	for _, field := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return out, fmt.Errorf("malformed authorization field %q", strings.TrimSpace(field))
		}
		switch key {
		case "Credential":
			parts := strings.Split(value, "/")
			if len(parts) != 5 || parts[4] != "aws4_request" {
				return out, errors.New("malformed credential scope")
			}
			out.accessKey, out.scopeDate, out.region, out.service = parts[0], parts[1], parts[2], parts[3]
		case "SignedHeaders":
			out.signedHeaders = strings.Split(strings.ToLower(value), ";")
		case "Signature":
			out.signature = value
		default:
			return out, fmt.Errorf("unknown authorization field %q", key)
		}
	}
	if out.accessKey == "" || len(out.signedHeaders) == 0 || out.signature == "" {
		return out, errors.New("incomplete authorization header")
	}
	return out, nil
}

func constantEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
