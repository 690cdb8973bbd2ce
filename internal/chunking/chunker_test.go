package chunking

import (
	"strings"
	"testing"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

func academicDoc() string {
	var b strings.Builder
	b.WriteString("Introduction\n")
	for i := 0; i < 40; i++ {
		b.WriteString("This paper studies retrieval augmented generation systems in depth. ")
	}
	b.WriteString("\nConclusion\n")
	for i := 0; i < 40; i++ {
		b.WriteString("We have shown that hybrid retrieval improves answer quality significantly. ")
	}
	return b.String()
}

func TestChunkDocument_ProducesNonEmptyChunks(t *testing.T) {
	c := New(ProfileAcademic)
	res := c.ChunkDocument(academicDoc(), "doc-1", "group-1", domain.SourceTypeNative, domain.ExtractionMethod{Kind: domain.MethodDirectRead})

	if len(res.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, ch := range res.Chunks {
		if err := ch.Validate(); err != nil {
			t.Fatalf("chunk failed validation: %v", err)
		}
		if ch.ContentHash == "" {
			t.Fatal("expected a content hash on every chunk")
		}
	}
}

func TestChunkDocument_SpansCoverChunkContent(t *testing.T) {
	c := New(ProfileAcademic)
	res := c.ChunkDocument(academicDoc(), "doc-1", "group-1", domain.SourceTypeNative, domain.ExtractionMethod{Kind: domain.MethodDirectRead})

	for i, ch := range res.Chunks {
		span := res.Spans[i]
		if err := span.Validate(); err != nil {
			t.Fatalf("span %d invalid: %v", i, err)
		}
		if span.CharEnd-span.CharStart < len(ch.Content)-1 {
			t.Errorf("span %d shorter than its chunk content: span=%d chunk=%d", i, span.CharEnd-span.CharStart, len(ch.Content))
		}
	}
}

func TestChunkDocument_NoSectionsFallsBackToSingleSegment(t *testing.T) {
	c := New(ProfileMixed)
	plain := strings.Repeat("plain prose with no headings at all. ", 5)
	res := c.ChunkDocument(plain, "doc-2", "group-1", domain.SourceTypeNative, domain.ExtractionMethod{Kind: domain.MethodDirectRead})
	if len(res.SectionsDetected) != 1 || res.SectionsDetected[0] != "Document" {
		t.Fatalf("expected single 'Document' segment, got %v", res.SectionsDetected)
	}
}

func TestIsFalseHeading(t *testing.T) {
	cases := map[string]bool{
		"Introduction": false,
		"Conclusion":   false,
		"Figure 3":     true,
		"ab":           true,
	}
	for title, want := range cases {
		if got := isFalseHeading(title); got != want {
			t.Errorf("isFalseHeading(%q) = %v, want %v", title, got, want)
		}
	}
}

func TestDynamicOverlapRatio_ClampedRange(t *testing.T) {
	c := New(ProfileLegal)
	ratio := c.dynamicOverlapRatio()
	if ratio <= 0 || ratio > c.cfg.OverlapTargetRatio {
		t.Fatalf("overlap ratio %v out of expected bounds (0, %v]", ratio, c.cfg.OverlapTargetRatio)
	}
}
