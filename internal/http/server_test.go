package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"presupuesto/internal/core"
	"presupuesto/internal/forecast"
	"presupuesto/internal/services"
	"presupuesto/internal/storage"
	"presupuesto/internal/taxonomy"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	store := taxonomy.NewStore(nil)
	svc := services.NewForecastService(repo, store, nil)

	s := NewServer("127.0.0.1:0", svc, Options{
		TotalsCacheSize:   10,
		TotalsCacheTTL:    time.Minute,
		RequestsPerMinute: 1000,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if rec := doRequest(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestSaveAllocationNormalizesLegacyID(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/projects/p1/allocations",
		`{"rubroId": "RB0001", "month": "M2", "amount": 1200}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST allocation = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var got core.AllocationPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.LineItemID != "MOD-ING" || got.LineaCodigo != "MOD-ING" || got.RubroCanonical != "MOD-ING" {
		t.Errorf("canonical fields = %q/%q/%q, want MOD-ING in all three",
			got.LineItemID, got.LineaCodigo, got.RubroCanonical)
	}
}

func TestSaveAllocationRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/projects/p1/allocations", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST bad body = %d, want 400", rec.Code)
	}
}

func TestProjectRubrosFromStoredRecords(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{"rubroId": "RB0001", "month": "M1", "amount": 3000}`,
		`{"rubroId": "RB0001", "month": "M2", "amount": 5000}`,
	} {
		if rec := doRequest(s, http.MethodPost, "/api/projects/p1/allocations", body); rec.Code != http.StatusCreated {
			t.Fatalf("POST allocation = %d: %s", rec.Code, rec.Body.String())
		}
	}
	if rec := doRequest(s, http.MethodPost, "/api/projects/p1/prefacturas",
		`{"id": "pf-1", "rubroId": "GSV-LIC", "month": 3, "amount": 900}`); rec.Code != http.StatusCreated {
		t.Fatalf("POST prefactura = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(s, http.MethodGet, "/api/projects/p1/rubros", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET rubros = %d: %s", rec.Code, rec.Body.String())
	}

	var rubros []forecast.Rubro
	if err := json.Unmarshal(rec.Body.Bytes(), &rubros); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rubros) != 2 {
		t.Fatalf("got %d rubros, want 2", len(rubros))
	}

	alloc := rubros[0]
	if alloc.CanonicalID != "MOD-ING" {
		t.Errorf("allocation canonicalId = %q, want MOD-ING", alloc.CanonicalID)
	}
	if !alloc.IsRecurring || alloc.Quantity != 2 {
		t.Errorf("allocation recurring/quantity = %v/%d, want true/2", alloc.IsRecurring, alloc.Quantity)
	}

	pref := rubros[1]
	if pref.Source != core.SourcePrefactura || pref.CanonicalID != "GSV-LIC" {
		t.Errorf("prefactura source/canonicalId = %q/%q", pref.Source, pref.CanonicalID)
	}
}

func TestTotalsCacheInvalidatedByWrite(t *testing.T) {
	s := newTestServer(t)

	post := `{"rows": [{"rubroId": "MOD-ING", "month": 1, "planned": 500, "forecast": 550}]}`
	if rec := doRequest(s, http.MethodPost, "/api/projects/p1/forecast", post); rec.Code != http.StatusOK {
		t.Fatalf("POST forecast = %d: %s", rec.Code, rec.Body.String())
	}

	var first forecast.Totals
	rec := doRequest(s, http.MethodGet, "/api/projects/p1/totals", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET totals = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if first.Overall.Planned != 500 {
		t.Fatalf("planned = %v, want 500", first.Overall.Planned)
	}

	// A second write must evict the cached aggregation.
	post = `{"rows": [{"rubroId": "MOD-ING", "month": 2, "planned": 300, "forecast": 300}]}`
	if rec := doRequest(s, http.MethodPost, "/api/projects/p1/forecast", post); rec.Code != http.StatusOK {
		t.Fatalf("POST forecast = %d: %s", rec.Code, rec.Body.String())
	}

	var second forecast.Totals
	rec = doRequest(s, http.MethodGet, "/api/projects/p1/totals", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if second.Overall.Planned != 800 {
		t.Errorf("planned after second write = %v, want 800", second.Overall.Planned)
	}
}

func TestTotalsWithExplicitMonths(t *testing.T) {
	s := newTestServer(t)

	post := `{"rows": [{"rubroId": "MOD-ING", "month": 2, "planned": 100}]}`
	if rec := doRequest(s, http.MethodPost, "/api/projects/p1/forecast", post); rec.Code != http.StatusOK {
		t.Fatalf("POST forecast = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(s, http.MethodGet, "/api/projects/p1/totals?months=1,2,3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET totals = %d: %s", rec.Code, rec.Body.String())
	}

	var totals forecast.Totals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if len(totals.Months) != 3 {
		t.Errorf("months = %v, want [1 2 3]", totals.Months)
	}

	if rec := doRequest(s, http.MethodGet, "/api/projects/p1/totals?months=1,x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET totals with bad months = %d, want 400", rec.Code)
	}
}

func TestProjectVariance(t *testing.T) {
	s := newTestServer(t)

	post := `{"rows": [
		{"rubroId": "MOD-ING", "month": 1, "planned": 1000, "forecast": 1100, "actual": 900},
		{"rubroId": "MOD-ING", "month": 2, "planned": 1000, "forecast": 1000, "actual": 0}
	]}`
	if rec := doRequest(s, http.MethodPost, "/api/projects/p1/forecast", post); rec.Code != http.StatusOK {
		t.Fatalf("POST forecast = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(s, http.MethodGet, "/api/projects/p1/variance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET variance = %d: %s", rec.Code, rec.Body.String())
	}

	var points []forecast.VariancePoint
	if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
		t.Fatalf("decode variance: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].ForecastVariancePlan != 100 || points[0].ActualVariancePlan != -100 {
		t.Errorf("month 1 deltas = %v/%v, want 100/-100",
			points[0].ForecastVariancePlan, points[0].ActualVariancePlan)
	}
	if points[0].ForecastVarianceBudget != nil {
		t.Error("budget delta set without a budget parameter")
	}

	rec = doRequest(s, http.MethodGet, "/api/projects/p1/variance?budget=1200,1200", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET variance with budget = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
		t.Fatalf("decode variance: %v", err)
	}
	if points[0].ForecastVarianceBudget == nil || *points[0].ForecastVarianceBudget != -100 {
		t.Errorf("month 1 budget delta = %v, want -100", points[0].ForecastVarianceBudget)
	}

	if rec := doRequest(s, http.MethodGet, "/api/projects/p1/variance?budget=1,x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET variance with bad budget = %d, want 400", rec.Code)
	}
}

func TestSaveForecastRejectsEmptyRows(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/projects/p1/forecast", `{"rows": []}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST empty rows = %d, want 422", rec.Code)
	}
}
