package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Clem69B/deglingos-app-sub000/internal/app/bootstrap"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		UseMemoryStore:     true,
		InvoicesTable:      "invoices",
		PatientsTable:      "patients",
		ConsultationsTable: "consultations",
		UserProfilesTable:  "user_profiles",
		CountersTable:      "counters",
		PaymentTermDays:    30,
		CacheTTL:           time.Minute,
		EmailProvider:      "stub",
		AuthDisabled:       true,
	}
}

func TestSetupMetricsExposesMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	if registry == nil || handler == nil {
		t.Fatalf("expected non-nil registry and handler")
	}

	metrics.NewInvoiceMetrics(registry).ObserveTransition("DRAFT", "PENDING")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clinic_invoices_status_transitions_total") {
		t.Fatalf("expected transition counter to be exported")
	}
}

func TestHealthChecksOnlyIncludeConfiguredDependencies(t *testing.T) {
	registry, _ := setupMetrics()
	services := bootstrap.Build(testConfig(), bootstrap.Infra{Logger: logging.Discard(), Registry: registry})
	defer services.Close(context.Background())

	if checks := healthChecks(services, nil, nil); len(checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(checks))
	}

	mr := miniredis.RunT(t)
	client := bootstrap.BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.Discard(), false)
	defer client.Close()

	checks := healthChecks(services, client, nil)
	ping, ok := checks["redis"]
	if !ok {
		t.Fatalf("expected redis check")
	}
	if err := ping(context.Background()); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
}

func TestBuildRouterServesTheAPI(t *testing.T) {
	cfg := testConfig()
	registry, metricsHandler := setupMetrics()
	services := bootstrap.Build(cfg, bootstrap.Infra{Logger: logging.Discard(), Registry: registry})
	defer services.Close(context.Background())

	handler := buildRouter(cfg, services, logging.Discard(), metricsHandler, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rr.Code)
	}

	body := strings.NewReader(`{"firstName":"Marie","lastName":"Dupont"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/patients/", body)
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected patient create 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/team/users", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected team routes to be absent without cognito, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/invoices/inv-1/pdf", nil))
	if rr.Code != http.StatusServiceUnavailable && rr.Code != http.StatusNotFound {
		t.Fatalf("expected pdf route without generator to be unavailable, got %d", rr.Code)
	}
}
