package language

import "strings"

// Variant sub-classifies a language code, currently only meaningful for
// Spanish tracks where latino and castilian need distinct artifacts.
const (
	VariantLatino             = "latino"
	VariantCastilian          = "castilian"
	VariantCastilianInferred  = "castilian (inferred)"
	VariantCastilianByOrder   = "castilian (by order)"
	VariantLatinoByOrder      = "latino (by order)"
)

var latinoTokens = []string{"es-419", "latin", "latino", "latam", "lat-es", "cr_spanish"}

var castilianTokens = []string{"castilian", "castellano", "es-es", "european"}

// IsLatinoHint reports whether a track title carries an explicit Latino tag.
func IsLatinoHint(title string) bool {
	return containsAny(title, latinoTokens)
}

// IsCastilianHint reports whether a track title carries an explicit
// Castilian tag.
func IsCastilianHint(title string) bool {
	return containsAny(title, castilianTokens)
}

// ClassifySpanish assigns a variant to each Spanish track title, in track
// order. Explicit tokens win. When the set contains one Latino-like track and
// one untagged track, the untagged one is inferred castilian. When no track
// carries a tag, position 0 is castilian and the rest latino, by order.
func ClassifySpanish(titles []string) []string {
	variants := make([]string, len(titles))
	latinoCount := 0
	untagged := make([]int, 0, len(titles))
	for i, title := range titles {
		switch {
		case IsCastilianHint(title):
			variants[i] = VariantCastilian
		case IsLatinoHint(title):
			variants[i] = VariantLatino
			latinoCount++
		default:
			untagged = append(untagged, i)
		}
	}

	if len(untagged) == len(titles) {
		// No tags anywhere: fall back to positional convention.
		for i := range variants {
			if i == 0 {
				variants[i] = VariantCastilianByOrder
			} else {
				variants[i] = VariantLatinoByOrder
			}
		}
		return variants
	}

	for _, i := range untagged {
		if latinoCount > 0 {
			variants[i] = VariantCastilianInferred
		} else {
			variants[i] = VariantLatinoByOrder
		}
	}
	return variants
}

// IsLatinoVariant reports whether a variant label resolves to Latino.
func IsLatinoVariant(variant string) bool {
	return strings.HasPrefix(variant, "latino")
}

// IsCastilianVariant reports whether a variant label resolves to Castilian.
func IsCastilianVariant(variant string) bool {
	return strings.HasPrefix(variant, "castilian")
}

// Suffix derives the artifact filename suffix for a language code and
// variant. Spanish splits into "lat" and "spa" by variant; everything else
// uses the 2-letter code, falling back to the 3-letter form. Japanese audio
// artifacts drop the suffix entirely, but that is the extractor's call: the
// bare form is the platform default track, not a property of the language.
func Suffix(code3, variant string) string {
	switch ToISO3(code3) {
	case "spa":
		if IsLatinoVariant(variant) {
			return "lat"
		}
		return "spa"
	}
	if two := ToISO2(code3); two != "" {
		return two
	}
	code := strings.ToLower(strings.TrimSpace(code3))
	if code == "" {
		return "und"
	}
	return code
}

func containsAny(value string, tokens []string) bool {
	lowered := strings.ToLower(value)
	for _, token := range tokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
