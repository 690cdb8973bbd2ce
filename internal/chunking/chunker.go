package chunking

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"lukechampine.com/blake3"
)

// Result is the output of one SmartChunker.ChunkDocument call: the
// committed chunks plus the spans they were assembled from and a small
// amount of run telemetry for the Benchmark exporter (SPEC_FULL §C).
type Result struct {
	Chunks           []*domain.Chunk
	Spans            []*domain.SourceSpan
	SectionsDetected []string
	TotalChars       int
	AvgChunkSize     float64
	ProcessingTime   time.Duration
}

// SmartChunker splits normalized document content into chunks, using
// section detection to keep semantically related text together and a
// sentence-boundary packer with dynamic overlap to size the result.
type SmartChunker struct {
	profile Profile
	cfg     Config
}

func New(profile Profile) *SmartChunker {
	return &SmartChunker{profile: profile, cfg: ConfigFor(profile)}
}

// dynamicOverlapRatio implements the P50-based overlap formula: the
// fraction of TargetTokens that should be repeated between consecutive
// chunks is clamped to [20, 64] tokens before being expressed as a ratio,
// then capped by the profile's configured OverlapTargetRatio ceiling.
func (c *SmartChunker) dynamicOverlapRatio() float64 {
	p50 := float64(c.cfg.TargetTokens)
	overlapTokens := round(0.15 * p50)
	if overlapTokens < 20 {
		overlapTokens = 20
	}
	if overlapTokens > 64 {
		overlapTokens = 64
	}
	ratio := overlapTokens / p50
	if c.cfg.OverlapTargetRatio > 0 && ratio > c.cfg.OverlapTargetRatio {
		return c.cfg.OverlapTargetRatio
	}
	return ratio
}

// TargetChars returns the profile's target chunk size in characters. Used
// by the Pipeline's fallback cascade (spec §4.2) to judge when a chunk is
// oversized relative to the profile in effect.
func (c *SmartChunker) TargetChars() int {
	return int(float64(c.cfg.TargetTokens) * c.cfg.CharsPerToken)
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
}

// ChunkDocument is the entry point: it detects sections, splits the
// document by them, and packs each segment into target-sized chunks with
// overlap, emitting a SourceSpan per chunk whose char range is located
// in the (already normalized) document content as makeChunk describes.
func (c *SmartChunker) ChunkDocument(content string, documentID, groupID string, sourceType domain.SourceType, method domain.ExtractionMethod) Result {
	start := time.Now()

	sections := detectSections(content, c.cfg)
	segments := splitBySections(content, sections, c.cfg)

	overlapRatio := c.cfg.OverlapPercent
	if c.cfg.OverlapTargetRatio > 0 {
		overlapRatio = c.dynamicOverlapRatio()
	}

	var chunks []*domain.Chunk
	var spans []*domain.SourceSpan
	index := 0
	var titles []string

	for _, seg := range segments {
		titles = append(titles, seg.title)
		segChunks, segSpans := c.chunkSegment(seg, overlapRatio, documentID, groupID, sourceType, method, &index)
		chunks = append(chunks, segChunks...)
		spans = append(spans, segSpans...)
	}

	var totalLen int
	for _, ch := range chunks {
		totalLen += len(ch.Content)
	}
	avg := 0.0
	if len(chunks) > 0 {
		avg = float64(totalLen) / float64(len(chunks))
	}

	return Result{
		Chunks:           chunks,
		Spans:            spans,
		SectionsDetected: titles,
		TotalChars:       len(content),
		AvgChunkSize:     avg,
		ProcessingTime:   time.Since(start),
	}
}

// chunkSegment packs one section's content into one or more chunks. A
// segment no longer than the target becomes a single chunk if its trimmed
// length reaches minChars and yields no chunk otherwise; larger ones are split at
// sentence boundaries with an overlap carried forward from the tail of
// the previous chunk, and force-split at MaxTokens if packing overruns it.
func (c *SmartChunker) chunkSegment(seg segment, overlapRatio float64, documentID, groupID string, sourceType domain.SourceType, method domain.ExtractionMethod, index *int) ([]*domain.Chunk, []*domain.SourceSpan) {
	targetChars := int(float64(c.cfg.TargetTokens) * c.cfg.CharsPerToken)
	overlapChars := int(float64(targetChars) * overlapRatio)
	maxChars := int(float64(c.cfg.MaxTokens) * c.cfg.CharsPerToken)
	minChars := int(float64(c.cfg.MinTokens) * c.cfg.CharsPerToken)

	var chunks []*domain.Chunk
	var spans []*domain.SourceSpan

	emit := func(text string) {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return
		}
		ch, sp := c.makeChunk(trimmed, seg, documentID, groupID, sourceType, method, *index)
		chunks = append(chunks, ch)
		spans = append(spans, sp)
		*index++
	}

	if len(seg.content) <= targetChars {
		if len(strings.TrimSpace(seg.content)) >= minChars {
			emit(seg.content)
		}
		return chunks, spans
	}

	// Cut after each boundary match, keeping the end punctuation with the
	// sentence it closes and the capital letter with the sentence it opens.
	var sentences []string
	prev := 0
	for _, m := range sentenceRegex.FindAllStringIndex(seg.content, -1) {
		cut := m[1]
		if last := seg.content[cut-1]; last >= 'A' && last <= 'Z' {
			cut--
		}
		sentences = append(sentences, seg.content[prev:cut])
		prev = cut
	}
	sentences = append(sentences, seg.content[prev:])
	var current strings.Builder
	currentRunes := []rune{}

	flush := func() {
		if current.Len() > 0 {
			emit(current.String())
		}
	}

	for _, raw := range sentences {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}

		if current.Len()+len(sentence) > targetChars && current.Len() > 0 {
			flush()

			// carry overlap forward as the seed of the next chunk, sliced
			// by rune count so a multi-byte boundary is never split.
			tail := currentRunes
			if len(tail) > 0 {
				overlapRunes := overlapChars
				if overlapRunes > len(tail) {
					overlapRunes = len(tail)
				}
				tailStr := string(tail[len(tail)-overlapRunes:])
				current.Reset()
				current.WriteString(tailStr)
				current.WriteByte(' ')
				current.WriteString(sentence)
			} else {
				current.Reset()
				current.WriteString(sentence)
			}
		} else {
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(sentence)
		}
		currentRunes = []rune(current.String())

		if current.Len() > maxChars {
			flush()
			current.Reset()
			currentRunes = nil
		}
	}
	flush()

	return chunks, spans
}

func (c *SmartChunker) makeChunk(content string, seg segment, documentID, groupID string, sourceType domain.SourceType, method domain.ExtractionMethod, index int) (*domain.Chunk, *domain.SourceSpan) {
	confidence := 0.9
	switch sourceType {
	case domain.SourceTypeNative:
		confidence = 1.0
	case domain.SourceTypeOCRExtracted:
		confidence = 0.8
	}

	hash := contentHash(content)
	chunkID := fmt.Sprintf("chunk_%s_%d", hash[:16], index)
	spanID := fmt.Sprintf("span_%s_%d", hash[:16], index)

	// The span's char range is found by locating content within the
	// section body, taking its first occurrence. Where the content does
	// not appear verbatim (packed sentences are rejoined with a single
	// space, whatever whitespace separated them), the span starts at the
	// section start.
	relOffset := strings.Index(seg.content, content)
	if relOffset < 0 {
		relOffset = 0
	}
	charStart := seg.start + relOffset
	charEnd := charStart + len(content)

	span := &domain.SourceSpan{
		ID:          spanID,
		DocumentID:  documentID,
		CharStart:   charStart,
		CharEnd:     charEnd,
		Method:      method,
		ContentHash: hash,
	}

	chunk := &domain.Chunk{
		ID:          chunkID,
		GroupID:     groupID,
		DocumentID:  documentID,
		Content:     content,
		ContentHash: hash,
		ChunkType:   domain.ChunkTypeTextBlock,
		StartLine:   index,
		EndLine:     index + 1,
		Metadata: domain.ChunkMetadata{
			Tags:             []string{"section:" + seg.title, fmt.Sprintf("level:%d", seg.level)},
			Priority:         0,
			Confidence:       confidence,
			SourceType:       sourceType,
			ExtractionMethod: method,
		},
		SourceSpans: []string{spanID},
		CreatedAt:   time.Now(),
	}
	return chunk, span
}

func contentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}
