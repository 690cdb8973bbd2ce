// Package extraction selects and runs the text-extraction strategy for a
// document: direct read for plain text/Markdown, OCR for images, and a
// quality-ratio decision table for PDFs that chooses between native
// extraction, a marked "hybrid" native pass, or an OCR fallback.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// Result is the raw-text output of one extraction pass, ready for
// TextCleaner.Normalize.
type Result struct {
	Text   string
	Method domain.ExtractionMethod
	// Failed marks an OCR-fallback pass that itself failed; the caller
	// emits a sentinel chunk rather than propagating an error.
	Failed bool
}

// PDFReader abstracts native PDF text extraction so the orchestrator does
// not depend directly on a parsing library's types.
type PDFReader interface {
	ExtractText(path string) (string, error)
}

// Orchestrator implements spec C3's per-document strategy selection.
type Orchestrator struct {
	pdf    PDFReader
	ocr    driven.OCREngine
	logger *slog.Logger
}

func New(pdf PDFReader, ocr driven.OCREngine, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{pdf: pdf, ocr: ocr, logger: logger}
}

// Extract dispatches on doc type, returning raw text and the extraction
// method that produced it. Errors are returned only for I/O failure reading
// the source file and for an unsupported document type; OCR and
// PDF-parsing failures, and a missing OCR engine, are captured in Result
// instead.
func (o *Orchestrator) Extract(ctx context.Context, path string, docType domain.DocumentType) (Result, error) {
	switch docType {
	case domain.DocumentTypePlain, domain.DocumentTypeMarkdown:
		text, err := readFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrIO, err)
		}
		return Result{Text: text, Method: domain.ExtractionMethod{Kind: domain.MethodDirectRead}}, nil

	case domain.DocumentTypeImage:
		return o.extractImage(ctx, path), nil

	case domain.DocumentTypePDF:
		return o.extractPDF(ctx, path), nil

	default:
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedApp, docType)
	}
}

func (o *Orchestrator) extractImage(ctx context.Context, path string) Result {
	if o.ocr == nil {
		o.logger.Warn("no ocr engine configured", "path", path)
		return Result{Failed: true, Method: domain.ExtractionMethod{Kind: domain.MethodTesseractOcr}}
	}
	ocrRes, err := o.ocr.ProcessImage(ctx, path)
	if err != nil {
		o.logger.Warn("ocr extraction failed", "path", path, "error", err)
		return Result{Failed: true, Method: domain.ExtractionMethod{Kind: domain.MethodTesseractOcr}}
	}
	return Result{
		Text: ocrRes.Text,
		Method: domain.ExtractionMethod{
			Kind:       domain.MethodTesseractOcr,
			Confidence: ocrRes.Confidence,
			Language:   ocrRes.Language,
		},
	}
}

// extractPDF implements spec §4.3's decision table: native text is always
// attempted first; its quality_ratio decides whether the native result is
// kept, kept-but-flagged, or discarded in favor of a per-page OCR pass.
func (o *Orchestrator) extractPDF(ctx context.Context, path string) Result {
	native, err := o.pdf.ExtractText(path)
	if err != nil {
		o.logger.Warn("native pdf extraction failed, falling back to ocr", "path", path, "error", err)
		return o.pdfOCRFallback(ctx, path)
	}

	ratio := qualityRatio(native)
	switch {
	case ratio > 0.7 && len(native) >= 1000:
		return Result{Text: native, Method: domain.ExtractionMethod{Kind: domain.MethodPdfNative}}
	case ratio > 0.6:
		return Result{Text: native, Method: domain.ExtractionMethod{Kind: domain.MethodHybridIntelligent}}
	default:
		o.logger.Info("native pdf quality below threshold, falling back to ocr", "path", path, "quality_ratio", ratio)
		return o.pdfOCRFallback(ctx, path)
	}
}

func (o *Orchestrator) pdfOCRFallback(ctx context.Context, path string) Result {
	if o.ocr == nil {
		o.logger.Warn("no ocr engine configured for fallback", "path", path)
		return Result{Failed: true, Method: domain.ExtractionMethod{Kind: domain.MethodPdfOcrFallback}}
	}
	ocrRes, err := o.ocr.ProcessImage(ctx, path)
	if err != nil {
		o.logger.Warn("ocr fallback failed", "path", path, "error", err)
		return Result{Failed: true, Method: domain.ExtractionMethod{Kind: domain.MethodPdfOcrFallback}}
	}
	return Result{
		Text: ocrRes.Text,
		Method: domain.ExtractionMethod{
			Kind:       domain.MethodPdfOcrFallback,
			Confidence: ocrRes.Confidence,
			Language:   ocrRes.Language,
		},
	}
}

// qualityRatio scores native PDF text extraction quality from its
// printable- and alphabetic-character density, per spec §4.3.
func qualityRatio(text string) float64 {
	if len(text) < 200 {
		return 0.3
	}

	var printable, alphabetic, total int
	for _, r := range text {
		total++
		if unicode.IsPrint(r) {
			printable++
		}
		if unicode.IsLetter(r) {
			alphabetic++
		}
	}
	if total == 0 {
		return 0.3
	}

	printableRatio := float64(printable) / float64(total)
	if printableRatio > 0.9 && len(text) > 1000 {
		return 1.0
	}

	alphaRatio := float64(alphabetic) / float64(total)
	ratio := alphaRatio * 1.2
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
