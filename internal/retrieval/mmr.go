package retrieval

import "math"

// MMRCandidate is one re-ranked result entering the diversification step.
type MMRCandidate struct {
	ChunkID   string
	Relevance float64
	Embedding []float32
}

// cosineSim computes cosine similarity between two equal-length vectors,
// 0 if the lengths differ or either is empty.
func cosineSim(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MMRSelect greedily picks up to topK candidates maximizing
// λ·relevance − (1−λ)·max-similarity-to-selected, diversifying the result
// set instead of returning near-duplicate top-relevance chunks. When a
// candidate has no embedding (not present in the search payload),
// queryEmbedding stands in for it, per spec §4.7 step 9's declared
// approximation.
func MMRSelect(candidates []MMRCandidate, queryEmbedding []float32, lambda float64, topK int) []MMRCandidate {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}

	remaining := make([]MMRCandidate, len(candidates))
	copy(remaining, candidates)

	vectorOf := func(c MMRCandidate) []float32 {
		if len(c.Embedding) > 0 {
			return c.Embedding
		}
		return queryEmbedding
	}

	var selected []MMRCandidate
	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				sim := cosineSim(vectorOf(cand), vectorOf(sel))
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*cand.Relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
