// Package retrieval implements spec C7's HybridRetriever: intent and
// query-kind detection, section-weighted BM25 fused with cosine similarity
// under frozen intent-specific coefficients, intelligent boosting,
// numerical-constraint reranking, and MMR diversification.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// QueryEncoder is the subset of the embedder facade the retriever needs.
type QueryEncoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Config tunes retrieval window sizes and diversification.
type Config struct {
	InitialCandidates int // N_initial fed into the vector store search, default 20
	TopKFinal         int
	MMRLambda         float64
}

func (c Config) withDefaults() Config {
	if c.InitialCandidates <= 0 {
		c.InitialCandidates = 20
	}
	if c.TopKFinal <= 0 {
		c.TopKFinal = 10
	}
	if c.MMRLambda <= 0 {
		c.MMRLambda = 0.5
	}
	return c
}

// Retriever runs the full HybridRetriever pipeline over one VectorStore
// collection.
type Retriever struct {
	store   driven.VectorStore
	encoder QueryEncoder
	cfg     Config
}

func New(store driven.VectorStore, encoder QueryEncoder, cfg Config) *Retriever {
	return &Retriever{store: store, encoder: encoder, cfg: cfg.withDefaults()}
}

// candidate carries a search hit through the scoring pipeline.
type candidate struct {
	chunk        *domain.RankedChunk
	bm25Raw      float64
	category     domain.QueryIntent
	constraintOK bool
}

// Search runs the full pipeline: encode → candidate retrieval → BM25 →
// normalize → fuse → boost → numerical rerank → MMR.
func (r *Retriever) Search(ctx context.Context, collection, query string, filters *domain.SearchFilters) ([]*domain.RankedChunk, error) {
	intent := DetectIntent(query)
	kind := DetectQueryKind(query)
	terms := QueryTerms(query)

	queryVec, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	hits, err := r.store.Search(ctx, collection, queryVec, r.cfg.InitialCandidates, filters)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	candidates := make([]candidate, len(hits))
	cosineScores := make([]float64, len(hits))
	bm25Scores := make([]float64, len(hits))

	for i, hit := range hits {
		candidates[i] = candidate{chunk: hit, category: DetectIntent(hit.Content)}
		cosineScores[i] = hit.CosineScore
		bm25Scores[i] = weightedBM25(terms, hit.Content)
		candidates[i].bm25Raw = bm25Scores[i]
	}

	normalizeMinMax(cosineScores)
	normalizeMinMax(bm25Scores)

	for i := range candidates {
		c := candidates[i].chunk
		c.CosineScore = cosineScores[i]
		c.BM25Score = bm25Scores[i]
		c.Category = candidates[i].category

		hybrid := FuseHybridScore(intent, c.CosineScore, c.BM25Score)
		c.HybridScore = hybrid
		c.FinalScore = ApplyIntelligentBoost(hybrid, intent, candidates[i].category, c.Content)
	}

	if kind == domain.KindDigitAtomic || kind == domain.KindDigitCombined {
		r.applyNumericalRerank(query, candidates)
	}

	ranked := r.rankCandidates(candidates, kind)
	return r.diversify(ranked, queryVec), nil
}

// applyNumericalRerank tags each candidate with whether it satisfies any
// constraint parsed from the query; ranking applies hard priority to
// matches, it does not alter FinalScore.
func (r *Retriever) applyNumericalRerank(query string, candidates []candidate) {
	constraints := ExtractConstraints(query)
	if len(constraints) == 0 {
		return
	}

	for i := range candidates {
		for _, constraint := range constraints {
			if MatchesConstraint(candidates[i].chunk.Content, constraint) {
				candidates[i].constraintOK = true
				candidates[i].chunk.HasConstraintMatch = true
				break
			}
		}
	}
}

// rankCandidates sorts by FinalScore descending; for digit-kind queries,
// constraint-matching chunks are hard-prioritized above non-matching ones
// regardless of score (spec §4.7 step 8).
func (r *Retriever) rankCandidates(candidates []candidate, kind domain.QueryKind) []candidate {
	numerical := kind == domain.KindDigitAtomic || kind == domain.KindDigitCombined

	sort.SliceStable(candidates, func(i, j int) bool {
		if numerical && candidates[i].constraintOK != candidates[j].constraintOK {
			return candidates[i].constraintOK
		}
		return candidates[i].chunk.FinalScore > candidates[j].chunk.FinalScore
	})
	return candidates
}

// diversify runs MMR over the constraint-matching candidates and the
// non-matching ones as two separate pools, so a hard constraint match
// (rankCandidates, step 8) can never be bumped out of the result by a
// higher-cosine non-match entering the same MMR pool (spec §4.7 step 9).
// The matching pool is diversified and emitted first; the non-matching
// pool only fills whatever TopKFinal slots remain.
func (r *Retriever) diversify(ranked []candidate, queryVec []float32) []*domain.RankedChunk {
	byID := make(map[string]*domain.RankedChunk, len(ranked))
	var matching, rest []candidate
	for _, c := range ranked {
		byID[c.chunk.ChunkID] = c.chunk
		if c.constraintOK {
			matching = append(matching, c)
		} else {
			rest = append(rest, c)
		}
	}

	ids := r.diversifyGroup(matching, queryVec, r.cfg.TopKFinal)
	if len(ids) < r.cfg.TopKFinal {
		ids = append(ids, r.diversifyGroup(rest, queryVec, r.cfg.TopKFinal-len(ids))...)
	}

	out := make([]*domain.RankedChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// diversifyGroup runs MMRSelect over one constraint-priority pool,
// returning up to topK chunk IDs in diversified order.
func (r *Retriever) diversifyGroup(group []candidate, queryVec []float32, topK int) []string {
	if topK <= 0 || len(group) == 0 {
		return nil
	}
	mmrCandidates := make([]MMRCandidate, len(group))
	for i, c := range group {
		mmrCandidates[i] = MMRCandidate{ChunkID: c.chunk.ChunkID, Relevance: c.chunk.FinalScore}
	}

	selected := MMRSelect(mmrCandidates, queryVec, r.cfg.MMRLambda, topK)
	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ChunkID
	}
	return ids
}
