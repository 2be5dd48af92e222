package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProbe struct {
	name string
	err  error
}

func (p fakeProbe) Name() string                  { return p.name }
func (p fakeProbe) Check(_ context.Context) error { return p.err }

func doHealth(t *testing.T, s *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	return w, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	s := newTestServer(t)

	w, body := doHealth(t, s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body.Status != "healthy" {
		t.Errorf("expected healthy, got %q", body.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		fakeProbe{name: "database"},
		fakeProbe{name: "sqs"},
	}

	w, body := doHealth(t, s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body.Components["database"].Status != "healthy" {
		t.Errorf("expected database healthy, got %+v", body.Components)
	}
}

func TestHandleHealth_FailingProbe(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		fakeProbe{name: "database"},
		fakeProbe{name: "sqs", err: errors.New("queue unreachable")},
	}

	w, body := doHealth(t, s)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body.Status != "unhealthy" {
		t.Errorf("expected unhealthy overall status, got %q", body.Status)
	}
	if body.Components["sqs"].Message != "queue unreachable" {
		t.Errorf("expected probe error message, got %+v", body.Components["sqs"])
	}
	if body.Components["database"].Status != "healthy" {
		t.Errorf("healthy probe should still report healthy, got %+v", body.Components["database"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{panicProbe{}}

	w, body := doHealth(t, s)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body.Components["flaky"].Status != "unhealthy" {
		t.Errorf("expected panicking probe reported unhealthy, got %+v", body.Components)
	}
}

type panicProbe struct{}

func (panicProbe) Name() string                  { return "flaky" }
func (panicProbe) Check(_ context.Context) error { panic("probe exploded") }
