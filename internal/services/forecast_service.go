package services

import (
	"context"
	"fmt"
	"log/slog"

	"presupuesto/internal/core"
	"presupuesto/internal/forecast"
	"presupuesto/internal/taxonomy"
)

// Repository is the persistence surface the service needs. Both the SQLite
// and the in-memory repositories satisfy it.
type Repository interface {
	SaveAllocation(ctx context.Context, projectID string, p core.AllocationPayload) (int64, error)
	ListAllocations(ctx context.Context, projectID string) ([]core.AllocationInput, error)
	SavePrefactura(ctx context.Context, projectID string, p core.PrefacturaInput) (int64, error)
	ListPrefacturas(ctx context.Context, projectID string) ([]core.PrefacturaInput, error)
	SaveForecastRow(ctx context.Context, projectID string, row core.ForecastRow) (int64, error)
	ListForecastRows(ctx context.Context, projectID string) ([]core.ForecastRow, error)
	UpsertTotalsSnapshot(ctx context.Context, projectID string, totals forecast.Totals) error
	GetTotalsSnapshot(ctx context.Context, projectID string) (forecast.Totals, error)
	Close() error
}

// Publisher emits row-written events for asynchronous totals refresh.
type Publisher interface {
	PublishRowSync(ctx context.Context, projectID string, rowID int64) error
}

// ForecastService orchestrates the planning operations: it reads raw
// records from the repository, runs them through taxonomy resolution and
// the forecast math, and normalizes write payloads before they are stored.
type ForecastService struct {
	repo      Repository
	taxonomy  *taxonomy.Store
	publisher Publisher
}

func NewForecastService(repo Repository, store *taxonomy.Store, publisher Publisher) *ForecastService {
	return &ForecastService{
		repo:      repo,
		taxonomy:  store,
		publisher: publisher,
	}
}

// ProjectRubros builds the unified rubro list for a project from its
// allocations and prefacturas. A fresh lookup cache is used per request so
// a taxonomy reload between requests cannot serve stale entries.
func (s *ForecastService) ProjectRubros(ctx context.Context, projectID string) ([]forecast.Rubro, error) {
	if err := s.taxonomy.EnsureLoaded(ctx); err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	allocations, err := s.repo.ListAllocations(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	prefacturas, err := s.repo.ListPrefacturas(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list prefacturas: %w", err)
	}

	cache := taxonomy.NewCache()
	return forecast.RubrosFromAllocations(s.taxonomy, cache, allocations, prefacturas), nil
}

// ProjectTotals aggregates a project's forecast rows. months may be nil to
// derive the month set from the rows.
func (s *ForecastService) ProjectTotals(ctx context.Context, projectID string, months []int) (forecast.Totals, error) {
	rows, err := s.repo.ListForecastRows(ctx, projectID)
	if err != nil {
		return forecast.Totals{}, fmt.Errorf("list forecast rows: %w", err)
	}
	return forecast.ComputeTotals(rows, months), nil
}

// SaveForecastRows normalizes and stores a batch of forecast rows, then
// notifies the totals worker. Publish failures do not fail the write; the
// rows are already durable.
func (s *ForecastService) SaveForecastRows(ctx context.Context, projectID string, rows []core.ForecastRow) ([]core.ForecastRow, error) {
	if err := s.taxonomy.EnsureLoaded(ctx); err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	cache := taxonomy.NewCache()
	normalized := forecast.NormalizeRowsForServer(s.taxonomy, cache, rows)

	for _, row := range normalized {
		id, err := s.repo.SaveForecastRow(ctx, projectID, row)
		if err != nil {
			return nil, fmt.Errorf("save forecast row: %w", err)
		}
		s.publishRowSync(ctx, projectID, id)
	}
	return normalized, nil
}

// SaveAllocation normalizes and stores one allocation write payload.
func (s *ForecastService) SaveAllocation(ctx context.Context, projectID string, p core.AllocationPayload) (core.AllocationPayload, error) {
	if err := s.taxonomy.EnsureLoaded(ctx); err != nil {
		return core.AllocationPayload{}, fmt.Errorf("load taxonomy: %w", err)
	}

	cache := taxonomy.NewCache()
	normalized := forecast.NormalizeAllocationPayload(s.taxonomy, cache, p)

	id, err := s.repo.SaveAllocation(ctx, projectID, normalized)
	if err != nil {
		return core.AllocationPayload{}, fmt.Errorf("save allocation: %w", err)
	}
	s.publishRowSync(ctx, projectID, id)

	return normalized, nil
}

// SavePrefactura stores a raw pre-invoice record.
func (s *ForecastService) SavePrefactura(ctx context.Context, projectID string, p core.PrefacturaInput) (int64, error) {
	id, err := s.repo.SavePrefactura(ctx, projectID, p)
	if err != nil {
		return 0, fmt.Errorf("save prefactura: %w", err)
	}
	return id, nil
}

// VarianceSeries zips a project's per-month aggregates into index-aligned
// variance points, in ascending month order. budget may be nil when the
// project has no budget baseline.
func (s *ForecastService) VarianceSeries(ctx context.Context, projectID string, budget []float64) ([]forecast.VariancePoint, error) {
	totals, err := s.ProjectTotals(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	plan := make([]float64, len(totals.Months))
	fc := make([]float64, len(totals.Months))
	actual := make([]float64, len(totals.Months))
	for i, m := range totals.Months {
		b := totals.ByMonth[m]
		plan[i] = b.Planned
		fc[i] = b.Forecast
		actual[i] = b.Actual
	}

	return forecast.ComputeVariance(plan, fc, actual, budget), nil
}

// RefreshTotalsSnapshot recomputes and stores a project's totals. The
// worker calls this on every row-sync message.
func (s *ForecastService) RefreshTotalsSnapshot(ctx context.Context, projectID string) error {
	totals, err := s.ProjectTotals(ctx, projectID, nil)
	if err != nil {
		return fmt.Errorf("compute totals: %w", err)
	}
	if err := s.repo.UpsertTotalsSnapshot(ctx, projectID, totals); err != nil {
		return fmt.Errorf("store totals snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Totals snapshot refreshed",
		"project_id", projectID,
		"months", len(totals.Months),
		"planned", totals.Overall.Planned)
	return nil
}

// TotalsSnapshot returns the stored snapshot, falling back to a live
// computation when none exists yet.
func (s *ForecastService) TotalsSnapshot(ctx context.Context, projectID string) (forecast.Totals, error) {
	totals, err := s.repo.GetTotalsSnapshot(ctx, projectID)
	if err == nil {
		return totals, nil
	}
	return s.ProjectTotals(ctx, projectID, nil)
}

func (s *ForecastService) publishRowSync(ctx context.Context, projectID string, rowID int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRowSync(ctx, projectID, rowID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish row sync message",
			"project_id", projectID,
			"row_id", rowID,
			"error", err)
	}
}

// Close releases the repository.
func (s *ForecastService) Close() error {
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return fmt.Errorf("close repository: %w", err)
		}
	}
	return nil
}
