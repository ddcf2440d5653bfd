package storage

import (
	"context"
	"fmt"
	"sync"

	"presupuesto/internal/core"
	"presupuesto/internal/forecast"
)

// MemoryRepository is an in-memory stand-in for the SQLite repository, used
// by tests and by the server when no database path is configured.
type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	allocations  map[string][]core.AllocationInput
	prefacturas  map[string][]core.PrefacturaInput
	forecastRows map[string][]core.ForecastRow
	snapshots    map[string]forecast.Totals
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		allocations:  map[string][]core.AllocationInput{},
		prefacturas:  map[string][]core.PrefacturaInput{},
		forecastRows: map[string][]core.ForecastRow{},
		snapshots:    map[string]forecast.Totals{},
	}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) SaveAllocation(ctx context.Context, projectID string, p core.AllocationPayload) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.allocations[projectID] = append(r.allocations[projectID], core.AllocationInput{
		ID:          fmt.Sprintf("%d", r.nextID),
		RubroID:     p.RubroCanonical,
		LineItemID:  p.LineItemID,
		Description: p.Description,
		Amount:      p.Amount,
		Month:       p.Month,
		ProjectID:   projectID,
	})
	return r.nextID, nil
}

func (r *MemoryRepository) ListAllocations(ctx context.Context, projectID string) ([]core.AllocationInput, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.AllocationInput(nil), r.allocations[projectID]...), nil
}

func (r *MemoryRepository) SavePrefactura(ctx context.Context, projectID string, p core.PrefacturaInput) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	p.ProjectID = projectID
	r.prefacturas[projectID] = append(r.prefacturas[projectID], p)
	return r.nextID, nil
}

func (r *MemoryRepository) ListPrefacturas(ctx context.Context, projectID string) ([]core.PrefacturaInput, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.PrefacturaInput(nil), r.prefacturas[projectID]...), nil
}

func (r *MemoryRepository) SaveForecastRow(ctx context.Context, projectID string, row core.ForecastRow) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	row.ProjectID = projectID
	r.forecastRows[projectID] = append(r.forecastRows[projectID], row)
	return r.nextID, nil
}

func (r *MemoryRepository) ListForecastRows(ctx context.Context, projectID string) ([]core.ForecastRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.ForecastRow(nil), r.forecastRows[projectID]...), nil
}

func (r *MemoryRepository) UpsertTotalsSnapshot(ctx context.Context, projectID string, totals forecast.Totals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[projectID] = totals
	return nil
}

func (r *MemoryRepository) GetTotalsSnapshot(ctx context.Context, projectID string) (forecast.Totals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	totals, ok := r.snapshots[projectID]
	if !ok {
		return forecast.Totals{}, ErrNotFound
	}
	return totals, nil
}
