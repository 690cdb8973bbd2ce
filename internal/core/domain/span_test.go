package domain

import "testing"

func TestSourceSpan_Validate(t *testing.T) {
	valid := &SourceSpan{CharStart: 0, CharEnd: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid span, got %v", err)
	}

	invalid := &SourceSpan{CharStart: 10, CharEnd: 10}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected error for empty range")
	}
}

func TestCovers_SingleSpanExactMatch(t *testing.T) {
	spans := []*SourceSpan{{CharStart: 0, CharEnd: 100}}
	if !Covers(spans, 0, 100) {
		t.Fatal("expected full coverage")
	}
}

func TestCovers_OverlappingSpansFillGap(t *testing.T) {
	spans := []*SourceSpan{
		{CharStart: 0, CharEnd: 60},
		{CharStart: 50, CharEnd: 120},
	}
	if !Covers(spans, 0, 100) {
		t.Fatal("expected overlapping spans to jointly cover the range")
	}
}

func TestCovers_GapIsNotCovered(t *testing.T) {
	spans := []*SourceSpan{
		{CharStart: 0, CharEnd: 40},
		{CharStart: 60, CharEnd: 100},
	}
	if Covers(spans, 0, 100) {
		t.Fatal("expected gap [40,60) to break coverage")
	}
}

func TestCovers_EmptyRangeTriviallyCovered(t *testing.T) {
	if !Covers(nil, 5, 5) {
		t.Fatal("an empty range should always be covered")
	}
}
