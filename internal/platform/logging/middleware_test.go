package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLoggerUsesRequestLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), zap.New(core))))
		})
	})
	router.Use(AccessLogger())
	router.Get("/user/personas/{personaId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/user/personas/einstein", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "request completed" {
		t.Fatalf("unexpected message: %s", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("expected status 418, got %v", fields["status"])
	}
	if fields["path"] != "/user/personas/einstein" {
		t.Fatalf("unexpected path: %v", fields["path"])
	}
	if fields["route"] != "/user/personas/{personaId}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if _, ok := fields["duration"]; !ok {
		t.Fatal("expected duration field")
	}
}

func TestAccessLoggerSkipsPaths(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	h := AccessLogger("/health", "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(WithLogger(req.Context(), zap.New(core)))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if n := recorded.Len(); n != 1 {
		t.Fatalf("expected only the root request to be logged, got %d entries", n)
	}
}

func TestRequestLoggerFallsBackToRequestID(t *testing.T) {
	SetProjectID("")
	var traceID string
	h := RequestLogger()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID, _ = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "req-42"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != "req-42" {
		t.Fatalf("expected request ID as trace ID, got %v", traceID)
	}
}

func TestRequestLoggerUsesTraceparent(t *testing.T) {
	SetProjectID("immortal-project")
	t.Cleanup(func() { SetProjectID("") })

	var traceID string
	h := RequestLogger()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID, _ = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceparentHeader, sampleTraceparent)
	h.ServeHTTP(httptest.NewRecorder(), req)

	want := "projects/immortal-project/traces/ab42124a3c573678d4d8b21ba52df3bf"
	if traceID != want {
		t.Fatalf("expected %s, got %v", want, traceID)
	}
}
