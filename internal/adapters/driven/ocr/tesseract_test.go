package ocr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

func TestParseTSV_FiltersLowConfidenceAndBlankWords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tsv")
	content := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"5\t1\t1\t1\t1\t1\t10\t20\t30\t40\t95.5\thello\n" +
		"5\t1\t1\t1\t1\t2\t50\t20\t30\t40\t10.0\tmaybe\n" +
		"5\t1\t1\t1\t1\t3\t90\t20\t30\t40\t80.0\t\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	boxes, avgConf, err := parseTSV(path, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 1 {
		t.Fatalf("expected one box above confidence floor, got %d", len(boxes))
	}
	if boxes[0].X != 10 || boxes[0].Y != 20 || boxes[0].W != 30 || boxes[0].H != 40 {
		t.Fatalf("unexpected box geometry: %+v", boxes[0])
	}
	if boxes[0].System != domain.CoordPixel {
		t.Fatalf("expected pixel coordinate system, got %v", boxes[0].System)
	}
	// average includes the low-confidence word (10.0/100) since only the
	// bounding-box list is floor-filtered, not the overall average; the
	// blank-text row is skipped entirely and does not count.
	wantAvg := (0.955 + 0.10) / 2
	if diff := avgConf - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected avg confidence %v, got %v", wantAvg, avgConf)
	}
}

func TestParseTSV_MissingFileReturnsEmptyWithoutError(t *testing.T) {
	boxes, avgConf, err := parseTSV(filepath.Join(t.TempDir(), "missing.tsv"), 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if boxes != nil || avgConf != 0 {
		t.Fatalf("expected zero value result for missing tsv, got boxes=%v avgConf=%v", boxes, avgConf)
	}
}

func TestExtensionFor_KnownAndUnknownMimeTypes(t *testing.T) {
	cases := map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/tiff":    ".tiff",
		"image/bmp":     ".bmp",
		"application/x": ".png",
	}
	for mime, want := range cases {
		if got := extensionFor(mime); got != want {
			t.Fatalf("extensionFor(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestNew_MissingBinaryReturnsError(t *testing.T) {
	_, err := New(Config{BinaryPath: "ragcore-nonexistent-binary-xyz"})
	if err == nil {
		t.Fatal("expected error for missing tesseract binary")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	if _, err := os.Stat("/usr/bin/env"); err != nil {
		t.Skip("no env binary available to stand in for tesseract")
	}
	// "env" always exists on POSIX systems and accepts --version-like
	// flags without erroring loudly enough to fail LookPath; we only
	// exercise the defaulting logic here, not a real OCR pass.
	eng, err := New(Config{BinaryPath: "env"})
	if err != nil {
		t.Fatal(err)
	}
	if len(eng.languages) != 1 || eng.languages[0] != "eng" {
		t.Fatalf("expected default language eng, got %v", eng.languages)
	}
	if eng.psm != 6 || eng.oem != 1 {
		t.Fatalf("expected default psm=6 oem=1, got psm=%d oem=%d", eng.psm, eng.oem)
	}
	if eng.confFloor != 0.3 {
		t.Fatalf("expected default confidence floor 0.3, got %v", eng.confFloor)
	}
	if eng.timeout.Seconds() != 45 {
		t.Fatalf("expected default timeout 45s, got %v", eng.timeout)
	}
}
