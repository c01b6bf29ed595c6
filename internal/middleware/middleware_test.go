package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/auth"
	"github.com/fleetify/api/internal/store"
)

func TestRequestIDKeepsValidHeader(t *testing.T) {
	var got string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got != "req-123" || rr.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("expected propagated request id, got ctx=%q header=%q", got, rr.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDReplacesUnprintableHeader(t *testing.T) {
	var got string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	for _, bad := range []string{"has space", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Request-Id", bad)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("expected generated uuid for %q, got %q", bad, got)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders("production")(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	for _, header := range []string{"X-Frame-Options", "X-Content-Type-Options", "Cache-Control", "Strict-Transport-Security"} {
		if rr.Header().Get(header) == "" {
			t.Fatalf("expected %s to be set", header)
		}
	}

	rr = httptest.NewRecorder()
	SecurityHeaders("development")(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS should only be sent in production")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.fleetify.test"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/imports/payments", nil)
	req.Header.Set("Origin", "https://app.fleetify.test/")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("origin with a trailing slash must not match exactly")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/imports/payments", nil)
	req.Header.Set("Origin", "https://app.fleetify.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.fleetify.test" {
		t.Fatalf("expected origin to be allowed")
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("expected allowed methods on preflight")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/imports/payments", nil)
	req.Header.Set("Origin", "https://app.fleetify.test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("plain OPTIONS should reach the handler, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for unknown origin")
	}
}

func TestLoggingRecordsStatusAndTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	tokens := store.NewMemory()
	tenantID := uuid.New()
	tokens.AddToken(auth.HashToken("flt_log"), store.Principal{TenantID: tenantID, Scopes: []string{"*"}})

	inner := AuthMiddleware{Tokens: tokens}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	handler := RequestID(Logging(logger)(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/payments/async", nil)
	req.Header.Set("Authorization", "Bearer flt_log")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["msg"] != "http_request" {
		t.Fatalf("unexpected message: %v", line["msg"])
	}
	if line["status"] != float64(http.StatusAccepted) || line["bytes"] != float64(2) {
		t.Fatalf("unexpected status/bytes: %v %v", line["status"], line["bytes"])
	}
	if line["tenant_id"] != tenantID.String() {
		t.Fatalf("expected tenant_id %s, got %v", tenantID, line["tenant_id"])
	}
}
