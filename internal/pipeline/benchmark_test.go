package pipeline

import (
	"context"
	"testing"
)

func TestBenchmark_ReportsIndexingAndSearchSections(t *testing.T) {
	p, _ := newTestPipeline(t)
	path := writeTempFile(t, "Introduction\n\n"+longParagraph("alpha beta gamma", 60)+"\n\nConclusion\n\n"+longParagraph("delta epsilon zeta", 60))

	report, err := p.Benchmark(context.Background(), BenchmarkWorkload{
		Paths:      []string{path},
		GroupID:    "group-1",
		Collection: "docs",
		Queries:    []string{"alpha", "delta"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Config.DocumentsIn != 1 || report.Config.Queries != 2 {
		t.Fatalf("unexpected config section: %+v", report.Config)
	}
	if report.Indexing.SuccessRate != 1.0 {
		t.Fatalf("expected full success rate, got %v", report.Indexing.SuccessRate)
	}
	if report.Indexing.PointsStored == 0 {
		t.Fatal("expected points stored to be non-zero")
	}
	if report.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestBenchmark_RecordsFailedIngestWithoutAbortingRun(t *testing.T) {
	p, _ := newTestPipeline(t)

	report, err := p.Benchmark(context.Background(), BenchmarkWorkload{
		Paths:      []string{"/nonexistent/missing.txt"},
		GroupID:    "group-1",
		Collection: "docs",
		Queries:    nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexing.SuccessRate != 0.0 {
		t.Fatalf("expected zero success rate for a failed ingest, got %v", report.Indexing.SuccessRate)
	}
}
