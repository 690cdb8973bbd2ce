package retrieval

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

var (
	percentageRegex  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	compressionRegex = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[x×X]`)
	constraintRegex  = regexp.MustCompile(`(?i)(inférieur|supérieur|moins|plus|greater|less|between|entre|<|>|≤|≥)`)
	symbolicRegex    = regexp.MustCompile(`([<>≤≥])\s*(\d+(?:\.\d+)?)\s*([x×X%])`)
	betweenRegex     = regexp.MustCompile(`(?i)(entre|between)\s+(\d+(?:\.\d+)?)[x×X%]?\s+(et|and)\s+(\d+(?:\.\d+)?)\s*([x×X%])`)
)

var conceptualKeywords = []string{
	"compression", "précision", "accuracy", "precision", "performance",
	"taux", "ratio", "rate", "level", "niveau", "résultat", "result",
	"tokens", "quality", "qualité", "décodage", "decoding",
}

// DetectQueryKind classifies whether a query carries a numerical
// constraint worth reranking on.
func DetectQueryKind(query string) domain.QueryKind {
	hasNumeric := percentageRegex.MatchString(query) || compressionRegex.MatchString(query)
	hasConstraint := constraintRegex.MatchString(query)
	lower := strings.ToLower(query)

	hasConceptual := false
	for _, kw := range conceptualKeywords {
		if strings.Contains(lower, kw) {
			hasConceptual = true
			break
		}
	}

	switch {
	case hasNumeric && (hasConstraint || hasConceptual):
		return domain.KindDigitCombined
	case hasNumeric && !hasConceptual:
		return domain.KindDigitAtomic
	case hasConceptual && len(strings.Fields(query)) > 5:
		return domain.KindTextCombined
	default:
		return domain.KindTextAtomic
	}
}

func normalizeUnit(raw string) domain.ConstraintUnit {
	raw = strings.ToLower(raw)
	if raw == "x" || raw == "×" {
		return domain.UnitCompression
	}
	return domain.UnitPercent
}

// ExtractConstraints parses numerical constraints out of a query, trying
// symbolic ("< 10x"), phrase ("inférieur à 10x"), range ("entre 5x et
// 10x"), and bare-value forms in that order; bare value only applies when
// nothing else matched.
func ExtractConstraints(query string) []domain.NumericalConstraint {
	var constraints []domain.NumericalConstraint

	if m := symbolicRegex.FindStringSubmatch(query); m != nil {
		value, _ := strconv.ParseFloat(m[2], 64)
		unit := normalizeUnit(m[3])
		switch m[1] {
		case "<", "≤":
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintLessThan, Unit: unit, Value: value})
		case ">", "≥":
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintGreaterThan, Unit: unit, Value: value})
		default:
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintExact, Unit: unit, Value: value})
		}
	}

	lower := strings.ToLower(query)
	if strings.Contains(lower, "inférieur") || strings.Contains(lower, "less") {
		if value, unit, ok := extractNumericValue(query); ok {
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintLessThan, Unit: unit, Value: value})
		}
	} else if strings.Contains(lower, "supérieur") || strings.Contains(lower, "greater") {
		if value, unit, ok := extractNumericValue(query); ok {
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintGreaterThan, Unit: unit, Value: value})
		}
	}

	if m := betweenRegex.FindStringSubmatch(query); m != nil {
		min, _ := strconv.ParseFloat(m[2], 64)
		max, _ := strconv.ParseFloat(m[4], 64)
		unit := normalizeUnit(m[5])
		constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintBetween, Unit: unit, Min: min, Max: max})
	}

	if len(constraints) == 0 {
		if value, unit, ok := extractNumericValue(query); ok {
			constraints = append(constraints, domain.NumericalConstraint{Kind: domain.ConstraintExact, Unit: unit, Value: value})
		}
	}

	return constraints
}

func extractNumericValue(text string) (float64, domain.ConstraintUnit, bool) {
	if m := percentageRegex.FindStringSubmatch(text); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		return value, domain.UnitPercent, true
	}
	if m := compressionRegex.FindStringSubmatch(text); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		return value, domain.UnitCompression, true
	}
	return 0, "", false
}

// ExtractValues finds every numeric value (percentage or compression
// ratio) present in chunk content, for constraint matching.
func ExtractValues(content string) []domain.ExtractedValue {
	var values []domain.ExtractedValue

	for _, m := range percentageRegex.FindAllStringSubmatchIndex(content, -1) {
		value, err := strconv.ParseFloat(content[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		values = append(values, domain.ExtractedValue{
			Value: value, Unit: domain.UnitPercent,
			RawText: content[m[0]:m[1]], Pos: m[0],
		})
	}

	for _, m := range compressionRegex.FindAllStringSubmatchIndex(content, -1) {
		value, err := strconv.ParseFloat(content[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		values = append(values, domain.ExtractedValue{
			Value: value, Unit: domain.UnitCompression,
			RawText: content[m[0]:m[1]], Pos: m[0],
		})
	}

	return values
}

// MatchesConstraint reports whether content contains a value satisfying
// constraint. Exact uses ±5% relative tolerance; the rest are strict.
func MatchesConstraint(content string, constraint domain.NumericalConstraint) bool {
	for _, extracted := range ExtractValues(content) {
		if extracted.Unit != constraint.Unit {
			continue
		}

		var satisfies bool
		switch constraint.Kind {
		case domain.ConstraintExact:
			denom := constraint.Value
			if denom < 1.0 {
				denom = 1.0
			}
			satisfies = (extracted.Value-constraint.Value)/denom < 0.05 && (constraint.Value-extracted.Value)/denom < 0.05
		case domain.ConstraintLessThan:
			satisfies = extracted.Value < constraint.Value
		case domain.ConstraintGreaterThan:
			satisfies = extracted.Value > constraint.Value
		case domain.ConstraintBetween:
			satisfies = extracted.Value >= constraint.Min && extracted.Value <= constraint.Max
		}

		if satisfies {
			return true
		}
	}
	return false
}
