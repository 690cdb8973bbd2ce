package domain

import "time"

// DocumentType is the declared type of a source document.
type DocumentType string

const (
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeImage    DocumentType = "image"
	DocumentTypePlain    DocumentType = "plain_text"
	DocumentTypeMarkdown DocumentType = "markdown"
)

// Document represents a single ingested source document and its chunks.
type Document struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	Type       DocumentType      `json:"type"`
	Content    string            `json:"content"` // post-extraction, post-normalization
	Language   string            `json:"language,omitempty"`
	Chunks     []*Chunk          `json:"chunks"`
	Provenance map[string]string `json:"provenance,omitempty"`
	OCRBlocks  []OCRBlock        `json:"ocr_blocks,omitempty"`
	ContentHash string           `json:"content_hash"` // BLAKE3 of Content; changes define a new version
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// OCRBlock is a per-token box returned by the OCR engine, retained on the
// Document for explainability when the extraction strategy used OCR.
type OCRBlock struct {
	X, Y, W, H int
	Text       string
	Confidence float64
	Level      string
}

// ChunkType classifies the structural role of a chunk's content.
type ChunkType string

const (
	ChunkTypeFunction  ChunkType = "function"
	ChunkTypeClass     ChunkType = "class"
	ChunkTypeModule    ChunkType = "module"
	ChunkTypeTextBlock ChunkType = "text_block"
	ChunkTypeComment   ChunkType = "comment"
)

// SourceType records which extraction path produced a chunk's content.
type SourceType string

const (
	SourceTypeNative        SourceType = "native_text"
	SourceTypeOCRExtracted  SourceType = "ocr_extracted"
	SourceTypeHybridNative  SourceType = "hybrid_pdf_native"
	SourceTypeHybridOCR     SourceType = "hybrid_pdf_ocr"
)

// ChunkMetadata carries per-chunk descriptive and provenance data.
type ChunkMetadata struct {
	Tags             []string          `json:"tags,omitempty"`
	Priority         int               `json:"priority"`
	Language         string            `json:"language,omitempty"`
	Confidence       float64           `json:"confidence"` // [0,1]
	SourceType       SourceType        `json:"source_type"`
	ExtractionMethod ExtractionMethod  `json:"extraction_method"`
	OCR              *OCRChunkMetadata `json:"ocr,omitempty"`
}

// OCRChunkMetadata is attached when a chunk's content came via OCR.
type OCRChunkMetadata struct {
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Chunk is an immutable-once-committed fragment of a normalized document.
type Chunk struct {
	ID          string        `json:"id"` // stable, hash-derived
	GroupID     string        `json:"group_id"`
	DocumentID  string        `json:"document_id"`
	Content     string        `json:"content"`
	ContentHash string        `json:"content_hash"` // BLAKE3(Content)
	ChunkType   ChunkType     `json:"chunk_type"`
	StartLine   int           `json:"start_line"`
	EndLine     int           `json:"end_line"`
	Embedding   []float32     `json:"embedding,omitempty"`
	Metadata    ChunkMetadata `json:"metadata"`
	SourceSpans []string      `json:"source_spans"` // SourceSpan IDs
	CreatedAt   time.Time     `json:"created_at"`
}

// Validate checks the structural invariants spec §3 requires of a
// committed Chunk. It does not check the embedding or its norm.
func (c *Chunk) Validate() error {
	if c.StartLine > c.EndLine && c.EndLine != 0 {
		return ErrInvalidChunk
	}
	if c.Content == "" {
		return ErrInvalidChunk
	}
	return nil
}
