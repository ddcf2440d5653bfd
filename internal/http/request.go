package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// maxBodyBytes caps request bodies. Planning payloads are small; anything
// past this is abuse.
const maxBodyBytes = 1 << 20

// decodeJSON decodes a request body into dst. Unknown fields are allowed
// because planning tools send payloads with extra metadata.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseMonths parses a comma-separated months query parameter, e.g.
// "1,2,3". Returns nil when the parameter is absent so callers derive the
// month set from the data.
func parseMonths(r *http.Request) ([]int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("months"))
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	months := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid month %q", part)
		}
		months = append(months, m)
	}
	return months, nil
}

// parseBudget parses a comma-separated budget query parameter, one amount
// per month, e.g. "1000,1000,1500". Returns nil when absent.
func parseBudget(r *http.Request) ([]float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("budget"))
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	budget := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid budget amount %q", part)
		}
		budget = append(budget, v)
	}
	return budget, nil
}
