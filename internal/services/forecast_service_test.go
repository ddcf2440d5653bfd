package services

import (
	"context"
	"sync"
	"testing"

	"presupuesto/internal/core"
	"presupuesto/internal/storage"
	"presupuesto/internal/taxonomy"
)

type recordingPublisher struct {
	mu       sync.Mutex
	projects []string
}

func (p *recordingPublisher) PublishRowSync(ctx context.Context, projectID string, rowID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projects = append(p.projects, projectID)
	return nil
}

func fptr(v float64) *float64 { return &v }

func newTestService(t *testing.T, pub Publisher) *ForecastService {
	t.Helper()
	store := taxonomy.NewStore(nil)
	if err := store.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded() error = %v", err)
	}
	return NewForecastService(storage.NewMemoryRepository(), store, pub)
}

func TestSaveForecastRowsNormalizesAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()

	saved, err := svc.SaveForecastRows(ctx, "proj-1", []core.ForecastRow{
		{RubroID: "RB0001", Month: 1, Planned: fptr(1000)},
		{RubroID: "tech-lead", Month: 2, Planned: fptr(2000)},
	})
	if err != nil {
		t.Fatalf("SaveForecastRows() error = %v", err)
	}

	if saved[0].RubroCanonical != "MOD-ING" || saved[1].RubroCanonical != "MOD-LEAD" {
		t.Errorf("canonical ids = %q/%q, want MOD-ING/MOD-LEAD", saved[0].RubroCanonical, saved[1].RubroCanonical)
	}
	if len(pub.projects) != 2 {
		t.Errorf("published %d messages, want 2", len(pub.projects))
	}

	rows, err := svc.repo.ListForecastRows(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ListForecastRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(rows))
	}
	if rows[0].LineItemID != "MOD-ING" {
		t.Errorf("stored line_item_id = %q, want MOD-ING", rows[0].LineItemID)
	}
}

func TestProjectTotalsAggregatesStoredRows(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SaveForecastRows(ctx, "proj-2", []core.ForecastRow{
		{RubroID: "MOD-ING", Month: 1, Planned: fptr(100), Forecast: fptr(110), Actual: fptr(90)},
		{RubroID: "GSV-LIC", Month: 1, Planned: fptr(50), Forecast: fptr(40), Actual: fptr(45)},
		{RubroID: "MOD-ING", Month: 2, Planned: fptr(100), Forecast: fptr(100), Actual: fptr(100)},
	})
	if err != nil {
		t.Fatalf("SaveForecastRows() error = %v", err)
	}

	totals, err := svc.ProjectTotals(ctx, "proj-2", nil)
	if err != nil {
		t.Fatalf("ProjectTotals() error = %v", err)
	}

	if len(totals.Months) != 2 {
		t.Fatalf("Months = %v, want two months", totals.Months)
	}
	if totals.Overall.Planned != 250 {
		t.Errorf("overall planned = %v, want 250", totals.Overall.Planned)
	}
	if m1 := totals.ByMonth[1]; m1.VarianceForecast != 0 {
		t.Errorf("month 1 varianceForecast = %v, want 0 (110+40 vs 100+50)", m1.VarianceForecast)
	}
}

func TestProjectRubrosMergesSources(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.SaveAllocation(ctx, "proj-3", core.AllocationPayload{
		RubroID: "RB0001", Amount: fptr(3000), Month: "M1",
	}); err != nil {
		t.Fatalf("SaveAllocation() error = %v", err)
	}
	if _, err := svc.SavePrefactura(ctx, "proj-3", core.PrefacturaInput{
		ID: "PF-1", RubroID: "GSV-VIA", Description: "Viaje", Amount: fptr(500), Month: "2",
	}); err != nil {
		t.Fatalf("SavePrefactura() error = %v", err)
	}

	rubros, err := svc.ProjectRubros(ctx, "proj-3")
	if err != nil {
		t.Fatalf("ProjectRubros() error = %v", err)
	}
	if len(rubros) != 2 {
		t.Fatalf("got %d rubros, want 2", len(rubros))
	}
	if rubros[0].Source != core.SourceAllocation || rubros[1].Source != core.SourcePrefactura {
		t.Errorf("sources = %q/%q, want allocation/prefactura", rubros[0].Source, rubros[1].Source)
	}
	if rubros[0].CanonicalID != "MOD-ING" {
		t.Errorf("allocation canonical id = %q, want MOD-ING", rubros[0].CanonicalID)
	}
}

func TestRefreshAndReadTotalsSnapshot(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SaveForecastRows(ctx, "proj-4", []core.ForecastRow{
		{RubroID: "MOD-ING", Month: 3, Planned: fptr(700), Forecast: fptr(770)},
	})
	if err != nil {
		t.Fatalf("SaveForecastRows() error = %v", err)
	}

	if err := svc.RefreshTotalsSnapshot(ctx, "proj-4"); err != nil {
		t.Fatalf("RefreshTotalsSnapshot() error = %v", err)
	}

	totals, err := svc.TotalsSnapshot(ctx, "proj-4")
	if err != nil {
		t.Fatalf("TotalsSnapshot() error = %v", err)
	}
	if totals.Overall.Planned != 700 {
		t.Errorf("snapshot planned = %v, want 700", totals.Overall.Planned)
	}
}

func TestTotalsSnapshotFallsBackToLiveComputation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SaveForecastRows(ctx, "proj-5", []core.ForecastRow{
		{RubroID: "GSV-LIC", Month: 1, Planned: fptr(100)},
	})
	if err != nil {
		t.Fatalf("SaveForecastRows() error = %v", err)
	}

	// No snapshot refreshed yet: must compute live.
	totals, err := svc.TotalsSnapshot(ctx, "proj-5")
	if err != nil {
		t.Fatalf("TotalsSnapshot() error = %v", err)
	}
	if totals.Overall.Planned != 100 {
		t.Errorf("live totals planned = %v, want 100", totals.Overall.Planned)
	}
}
