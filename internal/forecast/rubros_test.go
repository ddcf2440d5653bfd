package forecast

import (
	"context"
	"testing"

	"presupuesto/internal/core"
	"presupuesto/internal/taxonomy"
)

func fptr(v float64) *float64 { return &v }

func testStore(t *testing.T) *taxonomy.Store {
	t.Helper()
	store := taxonomy.NewStore(nil)
	if err := store.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded() error = %v", err)
	}
	return store
}

func TestMapAllocationsGroupsByRubro(t *testing.T) {
	store := testStore(t)

	allocations := []core.AllocationInput{
		{RubroID: "MOD-ING", Name: "Ingeniero", Amount: fptr(3000), Month: "M1"},
		{RubroID: "MOD-ING", Name: "Ingeniero", Amount: fptr(5000), Month: "M2"},
		{RubroID: "MOD-ING", Name: "Ingeniero", Amount: fptr(7000), Month: "M3"},
	}

	rubros := MapAllocations(store, taxonomy.NewCache(), allocations)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1", len(rubros))
	}

	r := rubros[0]
	if r.RubroID != "alloc-MOD-ING" {
		t.Errorf("RubroID = %q, want alloc-MOD-ING", r.RubroID)
	}
	if r.MonthsRange != [2]int{1, 3} {
		t.Errorf("MonthsRange = %v, want [1 3]", r.MonthsRange)
	}
	if r.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", r.Quantity)
	}
	if !r.IsRecurring {
		t.Error("IsRecurring = false, want true")
	}
	if r.UnitCost != 5000 {
		t.Errorf("UnitCost = %v, want 5000 (the average)", r.UnitCost)
	}
	if r.Source != core.SourceAllocation {
		t.Errorf("Source = %q, want allocation", r.Source)
	}
	if r.CanonicalID != "MOD-ING" {
		t.Errorf("CanonicalID = %q, want MOD-ING", r.CanonicalID)
	}
}

func TestMapAllocationsSkipsEmptyIdentifiers(t *testing.T) {
	store := testStore(t)

	allocations := []core.AllocationInput{
		{Amount: fptr(1000), Month: "M1"},
		{RubroID: "GSV-LIC", Amount: fptr(2000), Month: "M1"},
	}

	rubros := MapAllocations(store, taxonomy.NewCache(), allocations)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1 (record without identifier skipped)", len(rubros))
	}
}

func TestMapAllocationsUnparseableMonthStillSumsAmount(t *testing.T) {
	store := testStore(t)

	allocations := []core.AllocationInput{
		{RubroID: "GSV-VIA", Amount: fptr(1000), Month: "M2"},
		{RubroID: "GSV-VIA", Amount: fptr(500), Month: "sin-mes"},
	}

	rubros := MapAllocations(store, taxonomy.NewCache(), allocations)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1", len(rubros))
	}

	r := rubros[0]
	// Only one month parsed: not recurring, unit cost is the full total.
	if r.IsRecurring {
		t.Error("IsRecurring = true, want false")
	}
	if r.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", r.Quantity)
	}
	if r.UnitCost != 1500 {
		t.Errorf("UnitCost = %v, want 1500 (amount of unparsed month still summed)", r.UnitCost)
	}
	if r.MonthsRange != [2]int{2, 2} {
		t.Errorf("MonthsRange = %v, want [2 2]", r.MonthsRange)
	}
}

func TestMapAllocationsNoParsedMonthsDefaultsRange(t *testing.T) {
	store := testStore(t)

	allocations := []core.AllocationInput{
		{RubroID: "INF-HW", Monto: fptr(9000), Month: "???"},
	}

	rubros := MapAllocations(store, taxonomy.NewCache(), allocations)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1", len(rubros))
	}

	r := rubros[0]
	if r.MonthsRange != [2]int{1, 1} {
		t.Errorf("MonthsRange = %v, want default [1 1]", r.MonthsRange)
	}
	if r.UnitCost != 9000 {
		t.Errorf("UnitCost = %v, want 9000 (monto variant)", r.UnitCost)
	}
}

func TestMapAllocationsLegacyFieldVariants(t *testing.T) {
	store := testStore(t)

	allocations := []core.AllocationInput{
		{RubroIDAlt: "RB0001", Monto: fptr(4000), Mes: "2025-04"},
	}

	rubros := MapAllocations(store, taxonomy.NewCache(), allocations)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1", len(rubros))
	}

	r := rubros[0]
	if r.CanonicalID != "MOD-ING" {
		t.Errorf("CanonicalID = %q, want MOD-ING (via legacy alias)", r.CanonicalID)
	}
	if r.MonthsRange != [2]int{4, 4} {
		t.Errorf("MonthsRange = %v, want [4 4]", r.MonthsRange)
	}
}

func TestMapPrefacturas(t *testing.T) {
	store := testStore(t)

	prefacturas := []core.PrefacturaInput{
		{ID: "PF-77", RubroID: "GSV-LIC", Description: "Licencias anuales", Amount: fptr(1200), Month: "6"},
		{ID: "PF-78", RubroID: "GSV-VIA", Amount: fptr(800), Month: "7"},
	}

	rubros := MapPrefacturas(store, taxonomy.NewCache(), prefacturas)
	if len(rubros) != 2 {
		t.Fatalf("got %d rubros, want 2", len(rubros))
	}

	first := rubros[0]
	if first.RubroID != "pref-PF-77" {
		t.Errorf("RubroID = %q, want pref-PF-77", first.RubroID)
	}
	if first.Name != "Licencias anuales" {
		t.Errorf("Name = %q, want the description", first.Name)
	}
	if first.IsRecurring || first.Quantity != 1 {
		t.Errorf("prefactura rubros are one-shot: recurring=%v quantity=%d", first.IsRecurring, first.Quantity)
	}
	if first.MonthsRange != [2]int{6, 6} {
		t.Errorf("MonthsRange = %v, want [6 6]", first.MonthsRange)
	}

	second := rubros[1]
	if second.Name != "Prefactura PF-78" {
		t.Errorf("Name = %q, want fallback \"Prefactura PF-78\"", second.Name)
	}
}

func TestRubrosFromAllocationsMixedSources(t *testing.T) {
	store := testStore(t)
	cache := taxonomy.NewCache()

	allocations := []core.AllocationInput{
		{RubroID: "MOD-ING", Amount: fptr(3000), Month: "M1"},
		{RubroID: "MOD-ING", Amount: fptr(3000), Month: "M2"},
		{RubroID: "GSV-LIC", Amount: fptr(500), Month: "M1"},
		{RubroID: "INF-CLD", Amount: fptr(900), Month: "M1"},
	}
	prefacturas := []core.PrefacturaInput{
		{ID: "PF-1", RubroID: "MOD-ING", Description: "Horas facturadas", Amount: fptr(2800), Month: "1"},
		{ID: "PF-2", RubroID: "GSV-VIA", Description: "Viaje a sitio", Amount: fptr(400), Month: "2"},
	}

	rubros := RubrosFromAllocations(store, cache, allocations, prefacturas)
	if len(rubros) != 5 {
		t.Fatalf("got %d rubros, want 5 (3 allocation groups + 2 prefacturas)", len(rubros))
	}

	bySource := map[core.Source]int{}
	for _, r := range rubros {
		bySource[r.Source]++
	}
	if bySource[core.SourceAllocation] != 3 {
		t.Errorf("allocation rows = %d, want 3", bySource[core.SourceAllocation])
	}
	if bySource[core.SourcePrefactura] != 2 {
		t.Errorf("prefactura rows = %d, want 2", bySource[core.SourcePrefactura])
	}

	// MOD-ING appears in both sources and must stay duplicated.
	var modIng int
	for _, r := range rubros {
		if r.CanonicalID == "MOD-ING" {
			modIng++
		}
	}
	if modIng != 2 {
		t.Errorf("MOD-ING rows = %d, want 2 (no cross-source dedupe)", modIng)
	}
}

func TestMapLineItems(t *testing.T) {
	store := testStore(t)

	items := []core.LineItemInput{
		{LineItemID: "MOD-QA", Name: "QA del proyecto", Amount: fptr(1500), Month: "M5"},
	}

	rubros := MapLineItems(store, taxonomy.NewCache(), items)
	if len(rubros) != 1 {
		t.Fatalf("got %d rubros, want 1", len(rubros))
	}

	r := rubros[0]
	if r.RubroID != "item-MOD-QA" {
		t.Errorf("RubroID = %q, want item-MOD-QA", r.RubroID)
	}
	if r.Source != core.SourceLineItem {
		t.Errorf("Source = %q, want lineitem", r.Source)
	}
	if r.MonthsRange != [2]int{5, 5} {
		t.Errorf("MonthsRange = %v, want [5 5]", r.MonthsRange)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"passthrough", "MOD-ING_2", "MOD-ING_2"},
		{"special characters replaced", "a b/c", "a-b-c"},
		{"empty falls back", "", "unknown"},
		{"whitespace falls back", "   ", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := core.SanitizeID(tt.input); got != tt.want {
				t.Errorf("SanitizeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}
	if got := core.SanitizeID(string(long)); len(got) != 50 {
		t.Errorf("SanitizeID long input length = %d, want 50", len(got))
	}
}
