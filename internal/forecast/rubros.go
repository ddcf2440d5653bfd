package forecast

import (
	"strings"

	"presupuesto/internal/core"
	"presupuesto/internal/taxonomy"
)

// Rubro is the unified in-memory cost line built from any of the raw record
// shapes. It is rebuilt on every aggregation request and never persisted.
type Rubro struct {
	RubroID       string      `json:"rubroId"`
	CanonicalID   string      `json:"canonicalId,omitempty"`
	Name          string      `json:"name"`
	Category      string      `json:"category,omitempty"`
	CostType      string      `json:"costType,omitempty"`
	ExecutionType string      `json:"executionType,omitempty"`
	Source        core.Source `json:"source"`
	UnitCost      float64     `json:"unitCost"`
	Quantity      int         `json:"quantity"`
	IsRecurring   bool        `json:"isRecurring"`
	MonthsRange   [2]int      `json:"monthsRange"`
}

type allocationGroup struct {
	key     string
	members []core.AllocationInput
}

// MapAllocations folds raw budget allocations into one rubro per raw
// identifier. Records without any identifier are skipped. Month tokens that
// do not parse are excluded from the range and quantity, but their amounts
// still count toward the total.
func MapAllocations(store *taxonomy.Store, cache *taxonomy.Cache, allocations []core.AllocationInput) []Rubro {
	groups := make(map[string]*allocationGroup)
	var order []*allocationGroup
	for _, a := range allocations {
		key := a.RubroKey()
		if strings.TrimSpace(key) == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &allocationGroup{key: key}
			groups[key] = g
			order = append(order, g)
		}
		g.members = append(g.members, a)
	}

	rubros := make([]Rubro, 0, len(order))
	for _, g := range order {
		rubros = append(rubros, buildAllocationRubro(store, cache, g))
	}
	return rubros
}

func buildAllocationRubro(store *taxonomy.Store, cache *taxonomy.Cache, g *allocationGroup) Rubro {
	var total float64
	var months []int
	distinct := make(map[int]struct{})
	for _, a := range g.members {
		total += a.AmountValue()
		if m, ok := ParseMonthToken(a.MonthValue()); ok {
			months = append(months, m)
			distinct[m] = struct{}{}
		}
	}

	monthsRange := [2]int{1, 1}
	if len(months) > 0 {
		monthsRange = [2]int{months[0], months[0]}
		for _, m := range months[1:] {
			if m < monthsRange[0] {
				monthsRange[0] = m
			}
			if m > monthsRange[1] {
				monthsRange[1] = m
			}
		}
	}

	quantity := len(months)
	if quantity == 0 {
		quantity = 1
	}
	recurring := len(distinct) > 1

	unitCost := total
	if recurring {
		unitCost = total / float64(quantity)
	}

	r := Rubro{
		RubroID:     "alloc-" + core.SanitizeID(g.key),
		Name:        allocationName(g),
		Source:      core.SourceAllocation,
		UnitCost:    unitCost,
		Quantity:    quantity,
		IsRecurring: recurring,
		MonthsRange: monthsRange,
	}
	attachTaxonomy(&r, store.Resolve(g.members[0].Candidates(), cache))
	return r
}

func allocationName(g *allocationGroup) string {
	for _, a := range g.members {
		if strings.TrimSpace(a.Name) != "" {
			return a.Name
		}
	}
	for _, a := range g.members {
		if strings.TrimSpace(a.Description) != "" {
			return a.Description
		}
	}
	return g.key
}

// MapPrefacturas emits one rubro per pre-invoice, no grouping.
func MapPrefacturas(store *taxonomy.Store, cache *taxonomy.Cache, prefacturas []core.PrefacturaInput) []Rubro {
	rubros := make([]Rubro, 0, len(prefacturas))
	for _, p := range prefacturas {
		month := 1
		if m, ok := ParseMonthToken(p.MonthValue()); ok {
			month = m
		}

		name := p.Description
		if strings.TrimSpace(name) == "" {
			name = "Prefactura " + firstID(p.ID, p.RubroKey())
		}

		r := Rubro{
			RubroID:     "pref-" + core.SanitizeID(firstID(p.ID, p.RubroKey())),
			Name:        name,
			Source:      core.SourcePrefactura,
			UnitCost:    p.AmountValue(),
			Quantity:    1,
			IsRecurring: false,
			MonthsRange: [2]int{month, month},
		}
		attachTaxonomy(&r, store.Resolve(p.Candidates(), cache))
		rubros = append(rubros, r)
	}
	return rubros
}

// MapLineItems emits one rubro per baseline line item.
func MapLineItems(store *taxonomy.Store, cache *taxonomy.Cache, items []core.LineItemInput) []Rubro {
	rubros := make([]Rubro, 0, len(items))
	for _, li := range items {
		month := 1
		if m, ok := ParseMonthToken(li.MonthValue()); ok {
			month = m
		}

		name := firstID(li.Name, li.Description, li.RubroKey())

		r := Rubro{
			RubroID:     "item-" + core.SanitizeID(li.RubroKey()),
			Name:        name,
			Source:      core.SourceLineItem,
			UnitCost:    li.AmountValue(),
			Quantity:    1,
			IsRecurring: false,
			MonthsRange: [2]int{month, month},
		}
		attachTaxonomy(&r, store.Resolve(li.Candidates(), cache))
		rubros = append(rubros, r)
	}
	return rubros
}

// RubrosFromAllocations merges the allocation and prefactura views into one
// list. There is deliberately no cross-source deduplication: a rubro present
// in both sources yields two rows, told apart by Source.
func RubrosFromAllocations(store *taxonomy.Store, cache *taxonomy.Cache, allocations []core.AllocationInput, prefacturas []core.PrefacturaInput) []Rubro {
	rubros := MapAllocations(store, cache, allocations)
	return append(rubros, MapPrefacturas(store, cache, prefacturas)...)
}

func attachTaxonomy(r *Rubro, e *taxonomy.Entry) {
	if e == nil {
		return
	}
	r.CanonicalID = e.ID
	r.Category = e.CategoryName
	r.CostType = string(e.CostType)
	r.ExecutionType = string(e.ExecutionType)
	if strings.TrimSpace(r.Name) == "" {
		r.Name = e.Label
	}
}

func firstID(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
