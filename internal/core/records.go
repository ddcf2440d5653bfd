package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Source identifies which raw record shape a normalized rubro came from.
type Source string

const (
	SourceAllocation Source = "allocation"
	SourcePrefactura Source = "prefactura"
	SourceLineItem   Source = "lineitem"
)

type (
	// MonthToken is a loosely-typed month field as it arrives from the
	// datastore or an API payload. Upstream writers have historically sent
	// "M3", "2025-06", bare integers and JSON numbers for the same concept,
	// so the token keeps the raw text and leaves interpretation to the
	// month parser.
	MonthToken string

	// AllocationInput is a raw planned-budget record. Identifier and amount
	// fields come in several legacy spellings; accessors below resolve them
	// in a fixed priority order so the rest of the code never touches the
	// variants directly.
	AllocationInput struct {
		ID          string     `json:"id"`
		RubroID     string     `json:"rubroId"`
		RubroIDAlt  string     `json:"rubro_id"`
		LineItemID  string     `json:"line_item_id"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Amount      *float64   `json:"amount"`
		Monto       *float64   `json:"monto"`
		Month       MonthToken `json:"month"`
		Mes         MonthToken `json:"mes"`
		ProjectID   string     `json:"projectId"`
	}

	// PrefacturaInput is a raw pre-invoice record.
	PrefacturaInput struct {
		ID          string     `json:"id"`
		RubroID     string     `json:"rubroId"`
		RubroIDAlt  string     `json:"rubro_id"`
		Description string     `json:"description"`
		Amount      *float64   `json:"amount"`
		Monto       *float64   `json:"monto"`
		Month       MonthToken `json:"month"`
		Mes         MonthToken `json:"mes"`
		ProjectID   string     `json:"projectId"`
	}

	// LineItemInput is a raw baseline line-item record.
	LineItemInput struct {
		LineItemID  string     `json:"line_item_id"`
		RubroID     string     `json:"rubroId"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Amount      *float64   `json:"amount"`
		Monto       *float64   `json:"monto"`
		Month       MonthToken `json:"month"`
		Mes         MonthToken `json:"mes"`
		ProjectID   string     `json:"projectId"`
	}

	// ForecastRow is one (rubro, month) observation of the forecast grid.
	// Amount fields are pointers so a missing or null value can be told
	// apart from an explicit zero; aggregation coerces both to zero.
	ForecastRow struct {
		LineItemID     string   `json:"line_item_id"`
		RubroID        string   `json:"rubroId"`
		LineaCodigo    string   `json:"linea_codigo"`
		RubroCanonical string   `json:"rubro_canonical"`
		Description    string   `json:"description"`
		Category       string   `json:"category"`
		ProjectID      string   `json:"projectId"`
		Month          int      `json:"month"`
		Planned        *float64 `json:"planned"`
		Forecast       *float64 `json:"forecast"`
		Actual         *float64 `json:"actual"`
		Notes          string   `json:"notes"`
	}

	// AllocationPayload is an allocation write request. It shares the
	// identifier variants of ForecastRow plus the allocation-only fields.
	AllocationPayload struct {
		LineItemID     string     `json:"line_item_id"`
		RubroID        string     `json:"rubroId"`
		LineaCodigo    string     `json:"linea_codigo"`
		RubroCanonical string     `json:"rubro_canonical"`
		Description    string     `json:"description"`
		Category       string     `json:"category"`
		ProjectID      string     `json:"projectId"`
		Month          MonthToken `json:"month"`
		Amount         *float64   `json:"amount"`
		AllocationMode string     `json:"allocation_mode"`
		Notes          string     `json:"notes"`
	}
)

// UnmarshalJSON accepts strings, JSON numbers and null for month fields.
func (m *MonthToken) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*m = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("unmarshal month token: %w", err)
		}
		*m = MonthToken(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("unmarshal month token: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*m = MonthToken(strconv.FormatInt(i, 10))
		return nil
	}
	*m = MonthToken(n.String())
	return nil
}

func (m MonthToken) String() string {
	return string(m)
}

func (m MonthToken) IsEmpty() bool {
	return strings.TrimSpace(string(m)) == ""
}

// firstNonBlank returns the first value with non-whitespace content.
func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func appendNonBlank(dst []string, values ...string) []string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// RubroKey returns the raw identifier used to group allocations,
// preferring explicit rubro id fields over the line item id.
func (a AllocationInput) RubroKey() string {
	return firstNonBlank(a.RubroID, a.RubroIDAlt, a.LineItemID)
}

// Candidates lists every identifier or label worth trying against the
// taxonomy, explicit id fields before free-text ones.
func (a AllocationInput) Candidates() []string {
	return appendNonBlank(nil, a.RubroID, a.RubroIDAlt, a.LineItemID, a.Name, a.Description)
}

// AmountValue resolves the amount/monto variants, nil-safe.
func (a AllocationInput) AmountValue() float64 {
	return amountValue(a.Amount, a.Monto)
}

// MonthValue resolves the month/mes variants to a single raw token.
func (a AllocationInput) MonthValue() MonthToken {
	if !a.Month.IsEmpty() {
		return a.Month
	}
	return a.Mes
}

func (p PrefacturaInput) RubroKey() string {
	return firstNonBlank(p.RubroID, p.RubroIDAlt, p.ID)
}

func (p PrefacturaInput) Candidates() []string {
	return appendNonBlank(nil, p.RubroID, p.RubroIDAlt, p.Description)
}

func (p PrefacturaInput) AmountValue() float64 {
	return amountValue(p.Amount, p.Monto)
}

func (p PrefacturaInput) MonthValue() MonthToken {
	if !p.Month.IsEmpty() {
		return p.Month
	}
	return p.Mes
}

func (l LineItemInput) RubroKey() string {
	return firstNonBlank(l.LineItemID, l.RubroID)
}

func (l LineItemInput) Candidates() []string {
	return appendNonBlank(nil, l.LineItemID, l.RubroID, l.Name, l.Description)
}

func (l LineItemInput) AmountValue() float64 {
	return amountValue(l.Amount, l.Monto)
}

func (l LineItemInput) MonthValue() MonthToken {
	if !l.Month.IsEmpty() {
		return l.Month
	}
	return l.Mes
}

// EffectiveRubroID resolves the identifier a forecast row should be
// canonicalized under: explicit rubro id first, then the line item id.
func (r ForecastRow) EffectiveRubroID() string {
	return firstNonBlank(r.RubroID, r.LineItemID, r.LineaCodigo, r.RubroCanonical)
}

func (r ForecastRow) Candidates() []string {
	return appendNonBlank(nil, r.RubroID, r.LineItemID, r.LineaCodigo, r.RubroCanonical, r.Description)
}

func (p AllocationPayload) EffectiveRubroID() string {
	return firstNonBlank(p.RubroID, p.LineItemID, p.LineaCodigo, p.RubroCanonical)
}

func (p AllocationPayload) Candidates() []string {
	return appendNonBlank(nil, p.RubroID, p.LineItemID, p.LineaCodigo, p.RubroCanonical, p.Description)
}

func amountValue(primary, fallback *float64) float64 {
	if primary != nil {
		return SanitizeAmount(*primary)
	}
	if fallback != nil {
		return SanitizeAmount(*fallback)
	}
	return 0
}
