package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"utms/internal/entitystore"
	"utms/internal/metrics"
)

func TestHandleHealthReportsEntityCount(t *testing.T) {
	store := entitystore.New()
	store.Put(&entitystore.Entity{Name: "a", TypeKey: "task", Category: "default"})
	store.Put(&entitystore.Entity{Name: "b", TypeKey: "task", Category: "default"})

	srv := New(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "healthy" || resp.Entities != 2 {
		t.Fatalf("got %+v", resp)
	}
}

func TestHandleMetricsWithoutSinkOmitsLoggedMetricSection(t *testing.T) {
	store := entitystore.New()
	srv := New(store, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "utms_entities_total 0") {
		t.Fatalf("expected entity gauge, got %q", body)
	}
	if strings.Contains(body, "utms_logged_metric") {
		t.Fatal("expected no logged-metric section without a sink")
	}
}

func TestHandleMetricsWithSinkEmitsPerSampleGauge(t *testing.T) {
	store := entitystore.New()
	sink, err := metrics.Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("metrics.Open: %v", err)
	}
	defer sink.Close()
	if err := sink.LogMetric("focus", "deep-work-minutes", 45); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}

	srv := New(store, sink)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `utms_logged_metric{category="focus",name="deep-work-minutes"} 45`) {
		t.Fatalf("expected logged-metric gauge, got %q", body)
	}
}
