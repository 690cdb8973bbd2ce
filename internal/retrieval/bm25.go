package retrieval

import "strings"

const (
	bm25K1        = 1.2
	bm25B         = 0.75
	bm25AvgDocLen = 1000.0
	bm25IDF       = 2.0
)

// sectionKind classifies a line of document content for BM25 field
// weighting, so disclaimer/forward-looking boilerplate doesn't outscore
// substantive content purely on term density.
type sectionKind int

const (
	sectionBody sectionKind = iota
	sectionTitle
	sectionHeaderH1
	sectionTableCell
	sectionDisclaimer
	sectionForwardLooking
)

var sectionWeights = map[sectionKind]float64{
	sectionTitle:          1.0,
	sectionHeaderH1:       1.0,
	sectionBody:           0.7,
	sectionTableCell:      0.6,
	sectionDisclaimer:     0.25,
	sectionForwardLooking: 0.25,
}

var disclaimerPatterns = []string{
	"disclaimer", "forward-looking", "avertissement", "mise en garde",
	"risk factors", "facteurs de risque", "legal notice", "mention légale",
	"governance", "gouvernance d'entreprise", "regulatory", "réglementaire",
	"safe harbor", "protection", "limitation of liability", "limitation de responsabilité",
}

func classifySection(line string) sectionKind {
	lower := strings.ToLower(line)

	for _, p := range disclaimerPatterns {
		if strings.Contains(lower, p) {
			return sectionDisclaimer
		}
	}
	if strings.Contains(lower, "forward") || strings.Contains(lower, "outlook") ||
		strings.Contains(lower, "projection") || strings.Contains(lower, "estimate") {
		return sectionForwardLooking
	}

	if len(line) < 100 && len(line) > 0 {
		upper := 0
		for _, r := range line {
			if r >= 'A' && r <= 'Z' {
				upper++
			}
		}
		if float64(upper)/float64(len([]rune(line))) > 0.5 {
			return sectionTitle
		}
	}

	if strings.HasPrefix(lower, "chapter") || strings.HasPrefix(lower, "section") ||
		strings.HasPrefix(lower, "chapitre") || strings.HasPrefix(lower, "partie") {
		return sectionHeaderH1
	}

	if strings.Contains(line, "\t") || strings.Count(line, "|") > 2 || strings.Count(line, "  ") > 5 {
		return sectionTableCell
	}

	return sectionBody
}

// splitIntoSections breaks document text into non-empty lines, each
// classified independently, falling back to a single body section for
// content with no line breaks.
func splitIntoSections(content string) []struct {
	text string
	kind sectionKind
} {
	var sections []struct {
		text string
		kind sectionKind
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		sections = append(sections, struct {
			text string
			kind sectionKind
		}{trimmed, classifySection(trimmed)})
	}

	if len(sections) == 0 {
		sections = append(sections, struct {
			text string
			kind sectionKind
		}{content, sectionBody})
	}

	return sections
}

// bm25Score computes a simplified BM25 score for queryTerms against a
// single section of text, with a fixed IDF (spec §4.7 step 4 uses a
// simplified constant rather than corpus statistics).
func bm25Score(queryTerms []string, text string) float64 {
	docTerms := strings.Fields(text)
	docLen := float64(len(docTerms))

	var score float64
	for _, term := range queryTerms {
		termLower := strings.ToLower(term)
		var termFreq float64
		for _, t := range docTerms {
			if strings.Contains(strings.ToLower(t), termLower) {
				termFreq++
			}
		}
		if termFreq > 0 {
			tf := (termFreq * (bm25K1 + 1)) / (termFreq + bm25K1*(1-bm25B+bm25B*(docLen/bm25AvgDocLen)))
			score += tf * bm25IDF
		}
	}
	return score
}

// weightedBM25 computes the section-weighted BM25 score for a chunk's
// content: the document score is the sum over sections of
// weight(section) * BM25(section).
func weightedBM25(queryTerms []string, content string) float64 {
	var score float64
	for _, s := range splitIntoSections(content) {
		score += sectionWeights[s.kind] * bm25Score(queryTerms, s.text)
	}
	return score
}

// normalizeMinMax rescales scores into [0, 1] in place. A degenerate
// (zero-range) set maps to all zeros via the 1e-6 floor rather than NaN.
func normalizeMinMax(scores []float64) {
	if len(scores) == 0 {
		return
	}

	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	rng := max - min
	if rng < 1e-6 {
		rng = 1e-6
	}
	for i, s := range scores {
		scores[i] = (s - min) / rng
	}
}
