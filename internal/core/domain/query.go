package domain

// QueryIntent is the coarse domain classification of a query, used to
// select fusion coefficients and alignment boosts in the HybridRetriever.
type QueryIntent string

const (
	IntentBusiness  QueryIntent = "business"
	IntentAcademic  QueryIntent = "academic"
	IntentLegal     QueryIntent = "legal"
	IntentTechnical QueryIntent = "technical"
	IntentGeneral   QueryIntent = "general"
)

// QueryKind classifies whether a query carries a numerical constraint that
// warrants extraction-based reranking.
type QueryKind string

const (
	KindTextAtomic    QueryKind = "text_atomic"
	KindTextCombined  QueryKind = "text_combined"
	KindDigitAtomic   QueryKind = "digit_atomic"
	KindDigitCombined QueryKind = "digit_combined"
)

// ConstraintUnit is the unit a numerical constraint is expressed in.
type ConstraintUnit string

const (
	UnitPercent     ConstraintUnit = "%"
	UnitCompression ConstraintUnit = "x" // "10x" / "10×"
)

// NumericalConstraintKind tags which shape of constraint was parsed.
type NumericalConstraintKind string

const (
	ConstraintExact       NumericalConstraintKind = "exact"
	ConstraintLessThan    NumericalConstraintKind = "less_than"
	ConstraintGreaterThan NumericalConstraintKind = "greater_than"
	ConstraintBetween     NumericalConstraintKind = "between"
)

// NumericalConstraint is a parsed numeric requirement extracted from a
// DigitAtomic/DigitCombined query.
type NumericalConstraint struct {
	Kind NumericalConstraintKind
	Unit ConstraintUnit
	// Value is used by Exact/LessThan/GreaterThan.
	Value float64
	// Min/Max are used by Between.
	Min, Max float64
}

// ExtractedValue is a numeric value found in a candidate chunk's content,
// produced by the same pattern set used to parse query constraints.
type ExtractedValue struct {
	Value   float64
	Unit    ConstraintUnit
	RawText string
	Pos     int
}

// RankedChunk is one scored, explainable search result.
type RankedChunk struct {
	ChunkID             string
	Content             string
	Category            QueryIntent
	CosineScore         float64
	BM25Score           float64
	HybridScore         float64
	FinalScore          float64
	HasConstraintMatch  bool
	ContributingSpans   []string
}

// SearchFilters are structured predicates translated into the vector
// store's native filter grammar by the VectorStore adapter.
type SearchFilters struct {
	GroupID       string
	DocumentID    string
	ChunkType     ChunkType
	Language      string
	Tags          []string
	Priority      *int
	MinConfidence *float64
}
