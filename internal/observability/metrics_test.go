package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesProvisionMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveProvision("success", 1500*time.Millisecond)
	metrics.ObserveProvision("success", time.Second)
	metrics.ObserveProvision("failed-at-identity", 100*time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, `staffprov_provision_total{status="success"} 2`) {
		t.Fatalf("expected success counter, got: %s", body)
	}
	if !strings.Contains(body, `staffprov_provision_total{status="failed-at-identity"} 1`) {
		t.Fatalf("expected failure counter, got: %s", body)
	}
	if !strings.Contains(body, `staffprov_provision_duration_seconds_bucket{status="success",le="2"} 2`) {
		t.Fatalf("expected duration histogram, got: %s", body)
	}
	if !strings.Contains(body, "staffprov_last_provision_timestamp_seconds") {
		t.Fatalf("expected last run gauge, got: %s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveProvision("success", time.Second)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/reports")

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "staffprov_http_requests_total{code=\"418\",route=\"/reports\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "staffprov_http_request_duration_seconds_bucket{route=\"/reports\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
