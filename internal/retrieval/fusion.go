package retrieval

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// fusionCoefficients is the FROZEN intent-weighted fusion recipe (spec
// §4.7 step 6, production-calibrated). Do not alter without full
// re-validation against retrieval quality benchmarks.
var fusionCoefficients = map[domain.QueryIntent]struct{ cosine, bm25 float64 }{
	domain.IntentBusiness:  {0.40, 0.60},
	domain.IntentAcademic:  {0.55, 0.45},
	domain.IntentLegal:     {0.35, 0.65},
	domain.IntentTechnical: {0.50, 0.50},
	domain.IntentGeneral:   {0.50, 0.50},
}

// FuseHybridScore blends normalized cosine and BM25 scores using the
// intent's frozen coefficients.
func FuseHybridScore(intent domain.QueryIntent, cosineNorm, bm25Norm float64) float64 {
	c, ok := fusionCoefficients[intent]
	if !ok {
		c = fusionCoefficients[domain.IntentGeneral]
	}
	return c.cosine*cosineNorm + c.bm25*bm25Norm
}

var strongLegalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\barrêtés?\b`),
	regexp.MustCompile(`(?i)\bdécrets?\b`),
	regexp.MustCompile(`(?i)\bprocédures?\b`),
	regexp.MustCompile(`(?i)\bjuridictions?\b`),
	regexp.MustCompile(`(?i)\bassignations?\b`),
	regexp.MustCompile(`(?i)\barticles?\s+L\.?\s*\d+`),
	regexp.MustCompile(`(?i)\bcode\s+de\s+procédure\b`),
	regexp.MustCompile(`(?i)\bstatutory\b`),
	regexp.MustCompile(`(?i)\bsubpoenas?\b`),
	regexp.MustCompile(`(?i)\blitigations?\b`),
	regexp.MustCompile(`(?i)\bcompliance\s+policy\b`),
	regexp.MustCompile(`(?i)\blegal\s+proceedings?\b`),
	regexp.MustCompile(`(?i)\brecours\b`),
	regexp.MustCompile(`(?i)\btribunaux?\b`),
}

func countStrongLegalHits(text string) int {
	total := 0
	for _, re := range strongLegalPatterns {
		total += len(re.FindAllString(text, -1))
	}
	return total
}

type alignment struct {
	intent   domain.QueryIntent
	category domain.QueryIntent
}

var alignmentBoosts = map[alignment]float64{
	{domain.IntentBusiness, domain.IntentBusiness}:   0.25,
	{domain.IntentAcademic, domain.IntentAcademic}:   0.20,
	{domain.IntentLegal, domain.IntentGeneral}:       0.15, // General stands in for "Mixed"
	{domain.IntentTechnical, domain.IntentAcademic}:  0.12,
}

// ApplyIntelligentBoost adds alignment and legal-lexicon boosts, then
// clamps with the type-aware cap. category is the candidate document's
// own domain classification (category == IntentGeneral represents the
// reference implementation's "Mixed" category, since this module has no
// separate document-category taxonomy).
func ApplyIntelligentBoost(baseScore float64, intent, category domain.QueryIntent, content string) float64 {
	score := baseScore

	if boost, ok := alignmentBoosts[alignment{intent, category}]; ok {
		score += boost
	}

	if intent == domain.IntentLegal {
		if countStrongLegalHits(content) >= 2 {
			score += 0.15
		} else if category != domain.IntentGeneral {
			score -= 0.10
		}
	}

	score = typeAwareCap(intent, category, score)
	if score < 0 {
		score = 0
	}
	return score
}

// typeAwareCap suppresses cross-category overconfidence: a Legal query
// shouldn't let a Business document's score run unbounded, etc.
func typeAwareCap(intent, category domain.QueryIntent, score float64) float64 {
	switch {
	case intent == domain.IntentLegal && (category == domain.IntentBusiness || category == domain.IntentAcademic):
		return min(score, 0.75)
	case intent == domain.IntentBusiness && (category == domain.IntentAcademic || category == domain.IntentGeneral):
		return min(score, 0.85)
	case intent == domain.IntentAcademic && (category == domain.IntentBusiness || category == domain.IntentGeneral):
		return min(score, 0.80)
	default:
		return score
	}
}

// QueryTerms splits a query into whitespace-delimited terms for BM25.
func QueryTerms(query string) []string {
	return strings.Fields(query)
}
