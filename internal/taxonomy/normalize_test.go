package taxonomy

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain identifier",
			input: "MOD-ING",
			want:  "mod-ing",
		},
		{
			name:  "diacritics are stripped",
			input: "café",
			want:  "cafe",
		},
		{
			name:  "uppercase with diacritics",
			input: "CAFÉ",
			want:  "cafe",
		},
		{
			name:  "accented phrase",
			input: "Mañana de Obra",
			want:  "manana-de-obra",
		},
		{
			name:  "parenthetical content removed",
			input: "Service Delivery Manager (SDM)",
			want:  "service-delivery-manager",
		},
		{
			name:  "storage composite key keeps last segment",
			input: "ALLOCATION#base#2025-06#MOD-LEAD",
			want:  "mod-lead",
		},
		{
			name:  "punctuation runs collapse to one hyphen",
			input: "Viáticos / Viajes & Hospedaje",
			want:  "viaticos-viajes-hospedaje",
		},
		{
			name:  "repeated hyphens collapse",
			input: "a---b",
			want:  "a-b",
		},
		{
			name:  "all punctuation becomes empty",
			input: "---",
			want:  "",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "   ",
			want:  "",
		},
		{
			name:  "leading and trailing punctuation trimmed",
			input: "  ***Licencias***  ",
			want:  "licencias",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeKey(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeKeyIdempotent(t *testing.T) {
	inputs := []string{
		"MOD-ING",
		"café",
		"Mañana de Obra",
		"Service Delivery Manager (SDM)",
		"ALLOCATION#base#2025-06#MOD-LEAD",
		"Viáticos / Viajes & Hospedaje",
		"a---b",
	}

	for _, input := range inputs {
		once := NormalizeKey(input)
		twice := NormalizeKey(once)
		if once != twice {
			t.Errorf("NormalizeKey not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}
