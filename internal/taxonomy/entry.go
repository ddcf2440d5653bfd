package taxonomy

// CostType classifies a rubro as operating or capital expenditure.
type CostType string

const (
	CostOpex  CostType = "opex"
	CostCapex CostType = "capex"
)

// ExecutionType tells whether a rubro recurs monthly or is a one-time
// milestone expense.
type ExecutionType string

const (
	ExecRecurring ExecutionType = "recurring"
	ExecOneTime   ExecutionType = "one_time"
)

// LaborCategoryCode is the category that marks direct-labor rubros
// ("Mano de Obra Directa").
const LaborCategoryCode = "MOD"

// Entry is one canonical taxonomy row: the authoritative identity and
// metadata for a cost line.
type Entry struct {
	ID            string        `json:"id"`
	Label         string        `json:"label"`
	CategoryCode  string        `json:"categoryCode"`
	CategoryName  string        `json:"categoryName"`
	CostType      CostType      `json:"costType"`
	ExecutionType ExecutionType `json:"executionType"`
	Description   string        `json:"description"`

	// IsLabor is derived from the category on load, or set directly on
	// entries synthesized for labor ids that are not in the table yet.
	IsLabor bool `json:"-"`

	// Synthesized marks entries produced structurally by the resolver
	// rather than loaded from a taxonomy source.
	Synthesized bool `json:"-"`
}

// tableFile is the on-disk/remote taxonomy document shape.
type tableFile struct {
	Rubros        []Entry           `json:"rubros"`
	LegacyAliases map[string]string `json:"legacyAliases"`
}
