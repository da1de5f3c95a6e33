package language

import "testing"

func TestToISO3(t *testing.T) {
	cases := map[string]string{
		"ja":       "jpn",
		"jpn":      "jpn",
		"spanish":  "spa",
		"es":       "spa",
		"fre":      "fra",
		"":         "und",
		"xxxxx":    "und",
		"qqq":      "qqq",
		"pt-BR":    "por",
		"LANGUAGE": "und",
	}
	for input, want := range cases {
		if got := ToISO3(input); got != want {
			t.Fatalf("ToISO3(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("jpn"); got != "Japanese" {
		t.Fatalf("DisplayName(jpn) = %q", got)
	}
	if got := DisplayName("und"); got != "Unknown" {
		t.Fatalf("DisplayName(und) = %q", got)
	}
}

func TestExtractFromTags(t *testing.T) {
	if got := ExtractFromTags(map[string]string{"LANGUAGE": "JPN"}); got != "jpn" {
		t.Fatalf("unexpected tag language %q", got)
	}
	if got := ExtractFromTags(nil); got != "" {
		t.Fatalf("expected empty for nil tags, got %q", got)
	}
}

func TestClassifySpanishInferredCastilian(t *testing.T) {
	variants := ClassifySpanish([]string{"", "Latin"})
	if variants[0] != VariantCastilianInferred {
		t.Fatalf("untagged track should be inferred castilian, got %q", variants[0])
	}
	if variants[1] != VariantLatino {
		t.Fatalf("tagged track should be latino, got %q", variants[1])
	}
}

func TestClassifySpanishByOrder(t *testing.T) {
	variants := ClassifySpanish([]string{"Audio 1", "Audio 2", "Audio 3"})
	if variants[0] != VariantCastilianByOrder {
		t.Fatalf("position 0 should be castilian by order, got %q", variants[0])
	}
	for i := 1; i < 3; i++ {
		if variants[i] != VariantLatinoByOrder {
			t.Fatalf("position %d should be latino by order, got %q", i, variants[i])
		}
	}
}

func TestClassifySpanishExplicitTokensWin(t *testing.T) {
	variants := ClassifySpanish([]string{"Castellano", "es-419"})
	if variants[0] != VariantCastilian || variants[1] != VariantLatino {
		t.Fatalf("unexpected variants %v", variants)
	}
}

func TestSuffix(t *testing.T) {
	cases := []struct {
		code    string
		variant string
		want    string
	}{
		{"jpn", "", "ja"},
		{"spa", VariantLatino, "lat"},
		{"spa", VariantCastilianInferred, "spa"},
		{"spa", VariantCastilianByOrder, "spa"},
		{"eng", "", "en"},
		{"por", "", "pt"},
		{"und", "", "und"},
		{"qqq", "", "qqq"},
	}
	for _, tc := range cases {
		if got := Suffix(tc.code, tc.variant); got != tc.want {
			t.Fatalf("Suffix(%q, %q) = %q, want %q", tc.code, tc.variant, got, tc.want)
		}
	}
}
