package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// BenchmarkWorkload describes the fixed ingest+search workload one
// Benchmark run exercises.
type BenchmarkWorkload struct {
	Paths      []string
	GroupID    string
	Collection string
	Queries    []string
}

// Benchmark runs the workload's documents through Ingest (waiting for
// terminal sync state on each) and its queries through Query, then emits
// the JSON schema spec §6 names as the Benchmark external interface.
func (p *Pipeline) Benchmark(ctx context.Context, workload BenchmarkWorkload) (*domain.BenchmarkReport, error) {
	report := &domain.BenchmarkReport{
		Config: domain.BenchmarkConfig{
			Collection:  workload.Collection,
			GroupID:     workload.GroupID,
			DocumentsIn: len(workload.Paths),
			Queries:     len(workload.Queries),
		},
	}

	indexStart := time.Now()
	succeeded, pointsStored := 0, 0
	for _, path := range workload.Paths {
		doc, err := p.Ingest(ctx, path, workload.GroupID, workload.Collection, IngestConfig{WaitForSync: true})
		if err != nil {
			p.logger.Warn("benchmark ingest failed", "path", path, "error", err)
			continue
		}
		succeeded++
		pointsStored += len(doc.Chunks)
	}
	indexElapsed := time.Since(indexStart).Seconds()

	report.Indexing = domain.BenchmarkIndexing{
		TotalTimeSecs:          indexElapsed,
		ThroughputChunksPerSec: safeDiv(float64(pointsStored), indexElapsed),
		PointsStored:           pointsStored,
		SuccessRate:            safeDiv(float64(succeeded), float64(len(workload.Paths))),
	}

	latencies := make([]float64, 0, len(workload.Queries))
	totalResults := 0
	searchStart := time.Now()
	for _, q := range workload.Queries {
		qStart := time.Now()
		results, err := p.Query(ctx, workload.Collection, q, nil)
		elapsedMS := float64(time.Since(qStart).Microseconds()) / 1000.0
		if err != nil {
			p.logger.Warn("benchmark query failed", "query", q, "error", err)
			continue
		}
		latencies = append(latencies, elapsedMS)
		totalResults += len(results)
	}
	searchElapsed := time.Since(searchStart).Seconds()

	report.Search = domain.BenchmarkSearch{
		QPS:          safeDiv(float64(len(latencies)), searchElapsed),
		LatencyMS:    latencyStats(latencies),
		TotalResults: totalResults,
	}

	if p.store != nil {
		if info, err := p.store.CollectionInfo(ctx, workload.Collection); err == nil {
			pct := 0.0
			if info.VectorCount > 0 {
				pct = float64(info.IndexedVectors) / float64(info.VectorCount) * 100
			}
			report.IndexStatus = domain.BenchmarkIndexStatus{
				HNSWEnabled:        info.IndexedVectors > 0,
				IndexedVectors:     info.IndexedVectors,
				TotalVectors:       info.VectorCount,
				OptimizerStatus:    info.Status,
				IndexingPercentage: pct,
			}
		} else {
			p.logger.Warn("benchmark collection info failed", "error", err)
		}
	}

	if p.cache != nil {
		entries, bytes := p.cache.CacheStats()
		residentMB, reuseHitRate, forcedCleanups := p.cache.PoolStats()
		report.System = domain.BenchmarkSystem{
			CacheEntries:       entries,
			CacheMB:            float64(bytes) / (1024 * 1024),
			PoolResidentMB:     residentMB,
			PoolReuseHitRate:   reuseHitRate,
			PoolForcedCleanups: forcedCleanups,
		}
	}

	report.Timestamp = time.Now()
	return report, nil
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func latencyStats(samples []float64) domain.BenchmarkLatency {
	if len(samples) == 0 {
		return domain.BenchmarkLatency{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return domain.BenchmarkLatency{
		MinMS: sorted[0],
		AvgMS: sum / float64(len(sorted)),
		P50MS: percentile(sorted, 0.50),
		P95MS: percentile(sorted, 0.95),
		P99MS: percentile(sorted, 0.99),
		MaxMS: sorted[len(sorted)-1],
	}
}

// percentile returns the element at index int(p*(n-1)) of an
// already-sorted slice, without interpolating between neighbors.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
