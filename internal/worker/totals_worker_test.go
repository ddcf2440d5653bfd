package worker

import (
	"context"
	"testing"

	"presupuesto/internal/amqp"
	"presupuesto/internal/core"
	"presupuesto/internal/services"
	"presupuesto/internal/storage"
	"presupuesto/internal/taxonomy"
)

func fptr(v float64) *float64 { return &v }

func TestHandleRowSyncRefreshesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := taxonomy.NewStore(nil)
	if err := store.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded() error = %v", err)
	}

	repo := storage.NewMemoryRepository()
	svc := services.NewForecastService(repo, store, nil)

	saved, err := svc.SaveForecastRows(ctx, "proj-w", []core.ForecastRow{
		{RubroID: "MOD-ING", Month: 1, Planned: fptr(500), Forecast: fptr(550)},
	})
	if err != nil {
		t.Fatalf("SaveForecastRows() error = %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved %d rows, want 1", len(saved))
	}

	w := NewTotalsWorker(svc)
	if err := w.HandleRowSync(ctx, amqp.NewRowSyncMessage("proj-w", 1)); err != nil {
		t.Fatalf("HandleRowSync() error = %v", err)
	}

	totals, err := repo.GetTotalsSnapshot(ctx, "proj-w")
	if err != nil {
		t.Fatalf("GetTotalsSnapshot() error = %v", err)
	}
	if totals.Overall.Planned != 500 {
		t.Errorf("snapshot planned = %v, want 500", totals.Overall.Planned)
	}
	if totals.Overall.VarianceForecast != 50 {
		t.Errorf("snapshot varianceForecast = %v, want 50", totals.Overall.VarianceForecast)
	}
}

func TestHandleRowSyncDropsMessageWithoutProject(t *testing.T) {
	store := taxonomy.NewStore(nil)
	svc := services.NewForecastService(storage.NewMemoryRepository(), store, nil)
	w := NewTotalsWorker(svc)

	msg := amqp.NewRowSyncMessage("", 7)
	if err := w.HandleRowSync(context.Background(), msg); err != nil {
		t.Errorf("HandleRowSync() error = %v, want nil (drop, not requeue)", err)
	}
}
