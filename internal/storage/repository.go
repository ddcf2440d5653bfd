package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"presupuesto/internal/core"
	"presupuesto/internal/forecast"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteRepository persists the planning data: allocation and prefactura
// records, the forecast grid rows and the precomputed totals snapshots.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveAllocation stores a normalized allocation payload.
func (r *SQLiteRepository) SaveAllocation(ctx context.Context, projectID string, p core.AllocationPayload) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO allocations (project_id, rubro_canonical, line_item_id, linea_codigo, description, category, month, amount, allocation_mode, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, p.RubroCanonical, p.LineItemID, p.LineaCodigo, p.Description, p.Category,
		p.Month.String(), nullableAmount(p.Amount), p.AllocationMode, p.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert allocation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("allocation insert id: %w", err)
	}

	slog.InfoContext(ctx, "Allocation saved",
		"id", id,
		"project_id", projectID,
		"rubro", p.RubroCanonical,
		"month", p.Month.String())

	return id, nil
}

// ListAllocations returns a project's allocations in the raw record shape
// the mappers consume.
func (r *SQLiteRepository) ListAllocations(ctx context.Context, projectID string) ([]core.AllocationInput, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rubro_canonical, line_item_id, description, month, amount
		FROM allocations WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var out []core.AllocationInput
	for rows.Next() {
		var (
			id     int64
			a      core.AllocationInput
			month  string
			amount sql.NullFloat64
		)
		if err := rows.Scan(&id, &a.RubroID, &a.LineItemID, &a.Description, &month, &amount); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.ID = fmt.Sprintf("%d", id)
		a.ProjectID = projectID
		a.Month = core.MonthToken(month)
		if amount.Valid {
			v := amount.Float64
			a.Amount = &v
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return out, nil
}

// SavePrefactura stores a raw pre-invoice record.
func (r *SQLiteRepository) SavePrefactura(ctx context.Context, projectID string, p core.PrefacturaInput) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO prefacturas (prefactura_ref, project_id, rubro_id, description, amount, month)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, projectID, p.RubroKey(), p.Description, nullableAmount(p.Amount), p.MonthValue().String())
	if err != nil {
		return 0, fmt.Errorf("insert prefactura: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("prefactura insert id: %w", err)
	}
	return id, nil
}

// ListPrefacturas returns a project's pre-invoices as raw records.
func (r *SQLiteRepository) ListPrefacturas(ctx context.Context, projectID string) ([]core.PrefacturaInput, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT prefactura_ref, rubro_id, description, amount, month
		FROM prefacturas WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query prefacturas: %w", err)
	}
	defer rows.Close()

	var out []core.PrefacturaInput
	for rows.Next() {
		var (
			p      core.PrefacturaInput
			month  string
			amount sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.RubroID, &p.Description, &amount, &month); err != nil {
			return nil, fmt.Errorf("scan prefactura: %w", err)
		}
		p.ProjectID = projectID
		p.Month = core.MonthToken(month)
		if amount.Valid {
			v := amount.Float64
			p.Amount = &v
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prefacturas: %w", err)
	}
	return out, nil
}

// SaveForecastRow stores a normalized forecast grid row.
func (r *SQLiteRepository) SaveForecastRow(ctx context.Context, projectID string, row core.ForecastRow) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO forecast_rows (project_id, line_item_id, linea_codigo, rubro_canonical, description, category, month, planned, forecast, actual, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, row.LineItemID, row.LineaCodigo, row.RubroCanonical, row.Description, row.Category,
		row.Month, nullableAmount(row.Planned), nullableAmount(row.Forecast), nullableAmount(row.Actual),
		row.Notes, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert forecast row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("forecast row insert id: %w", err)
	}

	slog.InfoContext(ctx, "Forecast row saved",
		"id", id,
		"project_id", projectID,
		"rubro", row.RubroCanonical,
		"month", row.Month)

	return id, nil
}

// ListForecastRows returns every forecast row of a project.
func (r *SQLiteRepository) ListForecastRows(ctx context.Context, projectID string) ([]core.ForecastRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT line_item_id, linea_codigo, rubro_canonical, description, category, month, planned, forecast, actual, notes
		FROM forecast_rows WHERE project_id = ? ORDER BY month, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query forecast rows: %w", err)
	}
	defer rows.Close()

	var out []core.ForecastRow
	for rows.Next() {
		var (
			row                       core.ForecastRow
			planned, forecastV, actual sql.NullFloat64
		)
		if err := rows.Scan(&row.LineItemID, &row.LineaCodigo, &row.RubroCanonical, &row.Description,
			&row.Category, &row.Month, &planned, &forecastV, &actual, &row.Notes); err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		row.ProjectID = projectID
		row.Planned = nullableToPtr(planned)
		row.Forecast = nullableToPtr(forecastV)
		row.Actual = nullableToPtr(actual)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast rows: %w", err)
	}
	return out, nil
}

// UpsertTotalsSnapshot stores the precomputed totals for a project.
func (r *SQLiteRepository) UpsertTotalsSnapshot(ctx context.Context, projectID string, totals forecast.Totals) error {
	payload, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("marshal totals snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO totals_snapshots (project_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		projectID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert totals snapshot: %w", err)
	}
	return nil
}

// GetTotalsSnapshot loads the precomputed totals for a project.
func (r *SQLiteRepository) GetTotalsSnapshot(ctx context.Context, projectID string) (forecast.Totals, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM totals_snapshots WHERE project_id = ?`, projectID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return forecast.Totals{}, ErrNotFound
	}
	if err != nil {
		return forecast.Totals{}, fmt.Errorf("query totals snapshot: %w", err)
	}

	var totals forecast.Totals
	if err := json.Unmarshal([]byte(payload), &totals); err != nil {
		return forecast.Totals{}, fmt.Errorf("unmarshal totals snapshot: %w", err)
	}
	return totals, nil
}

func nullableAmount(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullableToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
