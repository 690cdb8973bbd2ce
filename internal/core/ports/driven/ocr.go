package driven

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// OCRResult is the raw output of an OCR pass over a single image or page.
type OCRResult struct {
	Text            string
	Confidence      float64
	Language        string
	BoundingBoxes   []domain.BoundingBox
	ProcessingMS    int64
}

// OCREngine extracts text from raster images or rasterized PDF pages.
// Implementations wrap an external process or library (e.g. Tesseract) and
// must never panic on malformed input; extraction failure is reported as
// an error, not a zero-value OCRResult.
type OCREngine interface {
	// ProcessImage runs OCR on an image file and returns its text content.
	ProcessImage(ctx context.Context, path string) (*OCRResult, error)

	// ProcessImageBytes is the in-memory equivalent, used when the caller
	// already holds the page raster (e.g. rendered from a PDF page).
	ProcessImageBytes(ctx context.Context, data []byte, mimeType string) (*OCRResult, error)

	HealthCheck(ctx context.Context) error
}
