package retrieval

import (
	"context"
	"testing"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

func TestDetectIntent_Business(t *testing.T) {
	if got := DetectIntent("revenue financial performance"); got != domain.IntentBusiness {
		t.Fatalf("expected business, got %s", got)
	}
}

func TestDetectIntent_GeneralOnNoHits(t *testing.T) {
	if got := DetectIntent("hello world"); got != domain.IntentGeneral {
		t.Fatalf("expected general, got %s", got)
	}
}

func TestDetectIntent_TieBreaksByPriority(t *testing.T) {
	// "strategy" (business) and "research" (academic) each hit once; business wins the tie.
	if got := DetectIntent("strategy research"); got != domain.IntentBusiness {
		t.Fatalf("expected business tie-break, got %s", got)
	}
}

func TestDetectQueryKind(t *testing.T) {
	cases := map[string]domain.QueryKind{
		"DeepEncoder c'est quoi ?":                               domain.KindTextAtomic,
		"DeepEncoder avec conv 16x et SAM dans l'encodeur":       domain.KindDigitAtomic,
		"95.1%":                                                  domain.KindDigitAtomic,
		"10.5×":                                                  domain.KindDigitAtomic,
		"précision de décodage à compression inférieur à 10x":    domain.KindDigitCombined,
		"Quel niveau de précision à 10x compression ?":           domain.KindDigitCombined,
	}
	for q, want := range cases {
		if got := DetectQueryKind(q); got != want {
			t.Errorf("DetectQueryKind(%q) = %s, want %s", q, got, want)
		}
	}
}

func TestExtractConstraints_LessThan(t *testing.T) {
	constraints := ExtractConstraints("précision inférieur à 10x")
	if len(constraints) != 1 {
		t.Fatalf("expected 1 constraint, got %d", len(constraints))
	}
	if constraints[0].Kind != domain.ConstraintLessThan || constraints[0].Value != 10.0 || constraints[0].Unit != domain.UnitCompression {
		t.Fatalf("unexpected constraint: %+v", constraints[0])
	}
}

func TestExtractConstraints_Symbolic(t *testing.T) {
	constraints := ExtractConstraints("< 10x")
	if len(constraints) != 1 || constraints[0].Kind != domain.ConstraintLessThan || constraints[0].Value != 10.0 {
		t.Fatalf("unexpected constraints: %+v", constraints)
	}
}

func TestExtractValues_FromChunk(t *testing.T) {
	content := "Tokens 600-700: 96.5% at 10.5x compression, 98.5% at 6.7x"
	values := ExtractValues(content)
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %d: %+v", len(values), values)
	}
}

func TestMatchesConstraint(t *testing.T) {
	content := "Tokens 600-700: 96.5% at 10.5x compression, 98.5% at 6.7x"

	lessThan10x := domain.NumericalConstraint{Kind: domain.ConstraintLessThan, Unit: domain.UnitCompression, Value: 10.0}
	if !MatchesConstraint(content, lessThan10x) {
		t.Fatal("expected 6.7x < 10x to match")
	}

	greaterThan95 := domain.NumericalConstraint{Kind: domain.ConstraintGreaterThan, Unit: domain.UnitPercent, Value: 95.0}
	if !MatchesConstraint(content, greaterThan95) {
		t.Fatal("expected 96.5%% > 95%% to match")
	}
}

func TestFuseHybridScore_BusinessPrefersBM25(t *testing.T) {
	score := FuseHybridScore(domain.IntentBusiness, 1.0, 0.0)
	if score != 0.40 {
		t.Fatalf("expected 0.40 cosine-only contribution, got %f", score)
	}
}

func TestApplyIntelligentBoost_AlignmentBoost(t *testing.T) {
	boosted := ApplyIntelligentBoost(0.5, domain.IntentBusiness, domain.IntentBusiness, "plain content")
	if boosted != 0.75 {
		t.Fatalf("expected 0.5+0.25=0.75, got %f", boosted)
	}
}

func TestApplyIntelligentBoost_TypeAwareCap(t *testing.T) {
	boosted := ApplyIntelligentBoost(0.9, domain.IntentLegal, domain.IntentBusiness, "plain content")
	if boosted > 0.75 {
		t.Fatalf("expected cap at 0.75, got %f", boosted)
	}
}

func TestNormalizeMinMax_ProducesUnitRange(t *testing.T) {
	scores := []float64{1.0, 5.0, 10.0}
	normalizeMinMax(scores)
	if scores[0] != 0.0 || scores[2] != 1.0 {
		t.Fatalf("expected min->0 max->1, got %v", scores)
	}
}

func TestMMRSelect_DiversifiesAgainstDuplicates(t *testing.T) {
	candidates := []MMRCandidate{
		{ChunkID: "a", Relevance: 1.0, Embedding: []float32{1, 0}},
		{ChunkID: "b", Relevance: 0.95, Embedding: []float32{1, 0}}, // near-duplicate of a
		{ChunkID: "c", Relevance: 0.5, Embedding: []float32{0, 1}},  // orthogonal, diverse
	}

	selected := MMRSelect(candidates, nil, 0.5, 2)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selected))
	}
	if selected[0].ChunkID != "a" {
		t.Fatalf("expected highest-relevance candidate first, got %s", selected[0].ChunkID)
	}
	if selected[1].ChunkID != "c" {
		t.Fatalf("expected diverse candidate c over near-duplicate b, got %s", selected[1].ChunkID)
	}
}

type fakeStore struct{}

func (fakeStore) EnsureCollection(ctx context.Context, name string, dim int) error { return nil }
func (fakeStore) Upsert(ctx context.Context, collection string, points []driven.EmbeddingPoint) error {
	return nil
}
func (fakeStore) Search(ctx context.Context, collection string, queryVec []float32, k int, filters *domain.SearchFilters) ([]*domain.RankedChunk, error) {
	return []*domain.RankedChunk{
		{ChunkID: "c1", Content: "revenue and profit grew strongly this quarter", CosineScore: 0.9},
		{ChunkID: "c2", Content: "an unrelated paragraph about gardening", CosineScore: 0.3},
	}, nil
}
func (fakeStore) Delete(ctx context.Context, collection string, chunkIDs []string) error { return nil }
func (fakeStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	return nil
}
func (fakeStore) CollectionInfo(ctx context.Context, collection string) (*driven.CollectionInfo, error) {
	return nil, nil
}
func (fakeStore) UpdateIndexingThreshold(ctx context.Context, collection string, threshold int) error {
	return nil
}
func (fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (fakeStore) Exists(ctx context.Context, collection string, chunkIDs []string) (map[string]bool, error) {
	return nil, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func TestDiversify_ConstraintMatchOutranksHigherCosineNonMatch(t *testing.T) {
	r := New(fakeStore{}, fakeEncoder{}, Config{TopKFinal: 2, MMRLambda: 0.5})

	a := &domain.RankedChunk{ChunkID: "a", Content: "no constraint here", FinalScore: 0.9}
	b := &domain.RankedChunk{ChunkID: "b", Content: "exactly 42 units in stock", FinalScore: 0.4}

	// rankCandidates has already hard-prioritized b (constraintOK) ahead of
	// a despite a's higher FinalScore/cosine; diversify must preserve that
	// ordering instead of letting a single shared MMR pool undo it.
	ranked := []candidate{
		{chunk: b, constraintOK: true},
		{chunk: a, constraintOK: false},
	}

	out := r.diversify(ranked, nil)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ChunkID != "b" || out[1].ChunkID != "a" {
		t.Fatalf("expected constraint match b before higher-cosine a, got [%s, %s]", out[0].ChunkID, out[1].ChunkID)
	}
}

func TestRetriever_SearchReturnsRankedResults(t *testing.T) {
	r := New(fakeStore{}, fakeEncoder{}, Config{})
	results, err := r.Search(context.Background(), "docs", "revenue performance", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].ChunkID != "c1" {
		t.Fatalf("expected business-aligned chunk c1 ranked first, got %s", results[0].ChunkID)
	}
}
