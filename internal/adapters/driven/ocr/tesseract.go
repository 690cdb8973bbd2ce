// Package ocr adapts the tesseract CLI binary to the driven.OCREngine port.
// It shells out to "tesseract" per call rather than linking a C binding,
// mirroring how the original Rust processor this was ported from drives
// the same binary via Command::new("tesseract").
package ocr

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"

	"github.com/google/uuid"
)

// Config tunes one TesseractEngine.
type Config struct {
	// Languages are joined with "+" for tesseract's -l flag. Defaults to
	// []string{"eng"} when empty.
	Languages []string
	// PSM is tesseract's --psm page segmentation mode. Defaults to 6
	// (single uniform block of text), the best fit for document chunks.
	PSM int
	// OEM is tesseract's --oem engine mode. Defaults to 1 (LSTM only).
	OEM int
	// ConfidenceThreshold discards individual TSV words below this
	// normalized (0-1) confidence when computing BoundingBoxes, but does
	// not affect the full-page Text or overall Confidence average.
	ConfidenceThreshold float64
	// TempDir holds the per-call output files tesseract writes. Defaults
	// to os.TempDir()/ragcore_ocr.
	TempDir string
	// Timeout bounds a single tesseract invocation. Defaults to 45s.
	Timeout time.Duration
	// BinaryPath overrides the "tesseract" lookup on PATH.
	BinaryPath string
	Logger     *slog.Logger
}

// TesseractEngine implements driven.OCREngine by invoking the tesseract CLI.
type TesseractEngine struct {
	languages  []string
	psm        int
	oem        int
	confFloor  float64
	tempDir    string
	timeout    time.Duration
	binaryPath string
	logger     *slog.Logger
}

// New constructs a TesseractEngine, verifying the binary is reachable and
// creating its temp directory. It does not validate installed language
// packs; an unsupported language surfaces as a tesseract command failure
// at ProcessImage time.
func New(cfg Config) (*TesseractEngine, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "tesseract"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("tesseract binary not found: %w", err)
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	psm := cfg.PSM
	if psm == 0 {
		psm = 6
	}
	oem := cfg.OEM
	if oem == 0 {
		oem = 1
	}
	confFloor := cfg.ConfidenceThreshold
	if confFloor == 0 {
		confFloor = 0.3
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "ragcore_ocr")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create ocr temp dir: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("tesseract engine initialized", "languages", languages, "psm", psm, "oem", oem)

	return &TesseractEngine{
		languages:  languages,
		psm:        psm,
		oem:        oem,
		confFloor:  confFloor,
		tempDir:    tempDir,
		timeout:    timeout,
		binaryPath: binary,
		logger:     logger,
	}, nil
}

// ProcessImage runs OCR on an image file on disk.
func (e *TesseractEngine) ProcessImage(ctx context.Context, path string) (*driven.OCRResult, error) {
	return e.run(ctx, path)
}

// ProcessImageBytes writes data to a temp file and delegates to ProcessImage,
// since tesseract's CLI only accepts file paths.
func (e *TesseractEngine) ProcessImageBytes(ctx context.Context, data []byte, mimeType string) (*driven.OCRResult, error) {
	ext := extensionFor(mimeType)
	tmpPath := filepath.Join(e.tempDir, fmt.Sprintf("input_%s%s", uuid.NewString(), ext))
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write ocr input file: %w", err)
	}
	defer os.Remove(tmpPath)
	return e.run(ctx, tmpPath)
}

// HealthCheck confirms the tesseract binary still runs and reports a version.
func (e *TesseractEngine) HealthCheck(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.binaryPath, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tesseract health check: %w", err)
	}
	return nil
}

func (e *TesseractEngine) run(ctx context.Context, imagePath string) (*driven.OCRResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	sessionID := uuid.NewString()
	outputBase := filepath.Join(e.tempDir, "ocr_output_"+sessionID)
	outputTxt := outputBase + ".txt"
	outputTSV := outputBase + ".tsv"
	defer os.Remove(outputTxt)
	defer os.Remove(outputTSV)

	args := []string{
		imagePath,
		outputBase,
		"-l", strings.Join(e.languages, "+"),
		"--psm", strconv.Itoa(e.psm),
		"--oem", strconv.Itoa(e.oem),
		"txt",
		"tsv",
	}
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tesseract timed out after %s", e.timeout)
		}
		return nil, fmt.Errorf("tesseract command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	text, err := readTrimmed(outputTxt)
	if err != nil {
		return nil, fmt.Errorf("read tesseract output: %w", err)
	}

	boxes, avgConf, err := parseTSV(outputTSV, e.confFloor)
	if err != nil {
		e.logger.Warn("tesseract tsv parse failed, continuing with text only", "error", err)
	}

	elapsed := time.Since(start)
	e.logger.Info("ocr pass complete", "path", imagePath, "confidence", avgConf, "elapsed_ms", elapsed.Milliseconds())

	return &driven.OCRResult{
		Text:          text,
		Confidence:    avgConf,
		Language:      e.languages[0],
		BoundingBoxes: boxes,
		ProcessingMS:  elapsed.Milliseconds(),
	}, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTSV reads tesseract's TSV word-level output (level, page, block,
// par, line, word, left, top, width, height, conf, text) and returns the
// bounding boxes above confFloor along with the confidence average across
// every non-blank word with a non-negative confidence, whether or not it
// clears confFloor.
func parseTSV(path string, confFloor float64) ([]domain.BoundingBox, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var boxes []domain.BoundingBox
	var confSum float64
	var confCount int

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			continue // header row
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}

		left, _ := strconv.ParseFloat(fields[6], 64)
		top, _ := strconv.ParseFloat(fields[7], 64)
		width, _ := strconv.ParseFloat(fields[8], 64)
		height, _ := strconv.ParseFloat(fields[9], 64)
		confRaw, _ := strconv.ParseFloat(fields[10], 64)
		text := strings.TrimSpace(fields[11])

		if text == "" || confRaw < 0 {
			continue
		}
		conf := confRaw / 100.0
		confSum += conf
		confCount++

		if conf < confFloor {
			continue
		}
		boxes = append(boxes, domain.BoundingBox{
			X: left, Y: top, W: width, H: height,
			System: domain.CoordPixel,
		})
	}
	if err := scanner.Err(); err != nil {
		return boxes, 0, err
	}

	avgConf := 0.0
	if confCount > 0 {
		avgConf = confSum / float64(confCount)
	}
	return boxes, avgConf, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/tiff":
		return ".tiff"
	case "image/bmp":
		return ".bmp"
	default:
		return ".png"
	}
}

var _ driven.OCREngine = (*TesseractEngine)(nil)
