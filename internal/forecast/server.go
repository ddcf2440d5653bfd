package forecast

import (
	"strings"

	"presupuesto/internal/core"
	"presupuesto/internal/taxonomy"
)

// NormalizeRowForServer shapes a forecast row into the canonical wire form
// expected by the write path. The resolved canonical id replaces
// line_item_id, linea_codigo and rubro_canonical uniformly; when no
// taxonomy entry is found the raw identifier passes through unchanged.
// Caller-supplied description/category always win over taxonomy metadata,
// and both default to the empty string so downstream code can treat missing
// metadata uniformly. Every other field passes through untouched.
func NormalizeRowForServer(store *taxonomy.Store, cache *taxonomy.Cache, row core.ForecastRow) core.ForecastRow {
	out := row

	effective := firstID(row.RubroID, row.LineItemID, row.LineaCodigo, row.RubroCanonical)
	canonical := effective
	entry := store.CanonicalizeID(effective, cache)
	if entry != nil {
		canonical = entry.ID
	}

	out.LineItemID = canonical
	out.LineaCodigo = canonical
	out.RubroCanonical = canonical

	if strings.TrimSpace(out.Description) == "" {
		out.Description = ""
		if entry != nil {
			out.Description = entry.Label
		}
	}
	if strings.TrimSpace(out.Category) == "" {
		out.Category = ""
		if entry != nil {
			out.Category = entry.CategoryName
		}
	}
	return out
}

// NormalizeRowsForServer is the element-wise NormalizeRowForServer.
func NormalizeRowsForServer(store *taxonomy.Store, cache *taxonomy.Cache, rows []core.ForecastRow) []core.ForecastRow {
	out := make([]core.ForecastRow, len(rows))
	for i, row := range rows {
		out[i] = NormalizeRowForServer(store, cache, row)
	}
	return out
}

// NormalizeAllocationPayload applies the same canonicalization to an
// allocation write payload. Amount and allocation_mode pass through.
func NormalizeAllocationPayload(store *taxonomy.Store, cache *taxonomy.Cache, p core.AllocationPayload) core.AllocationPayload {
	out := p

	effective := firstID(p.RubroID, p.LineItemID, p.LineaCodigo, p.RubroCanonical)
	canonical := effective
	entry := store.CanonicalizeID(effective, cache)
	if entry != nil {
		canonical = entry.ID
	}

	out.LineItemID = canonical
	out.LineaCodigo = canonical
	out.RubroCanonical = canonical

	if strings.TrimSpace(out.Description) == "" {
		out.Description = ""
		if entry != nil {
			out.Description = entry.Label
		}
	}
	if strings.TrimSpace(out.Category) == "" {
		out.Category = ""
		if entry != nil {
			out.Category = entry.CategoryName
		}
	}
	return out
}
