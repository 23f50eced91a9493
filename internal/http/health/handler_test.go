package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, resp *httptest.ResponseRecorder) Response {
	t.Helper()
	var h Response
	if err := json.Unmarshal(resp.Body.Bytes(), &h); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return h
}

func TestHealthHandler(t *testing.T) {
	resp := httptest.NewRecorder()
	Handler(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if h := decode(t, resp); h.Status != "healthy" || h.Checks != nil {
		t.Fatalf("unexpected body %+v", h)
	}
}

func TestReadyAllPassing(t *testing.T) {
	h := Ready(map[string]Check{
		"redis":    func(context.Context) error { return nil },
		"personas": func(context.Context) error { return nil },
	})
	resp := httptest.NewRecorder()
	h(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := decode(t, resp)
	if body.Checks["redis"] != "ok" || body.Checks["personas"] != "ok" {
		t.Fatalf("unexpected checks %+v", body.Checks)
	}
}

func TestReadyFailingCheck(t *testing.T) {
	h := Ready(map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
		"personas": func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("expected a deadline")
			}
			return nil
		},
	})
	resp := httptest.NewRecorder()
	h(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	body := decode(t, resp)
	if body.Status != "unhealthy" || body.Checks["redis"] != "failing" || body.Checks["personas"] != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReadyWithoutChecks(t *testing.T) {
	resp := httptest.NewRecorder()
	Ready(nil)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
