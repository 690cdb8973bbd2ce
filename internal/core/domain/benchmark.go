package domain

import "time"

// BenchmarkConfig records the workload shape a benchmark run exercised.
type BenchmarkConfig struct {
	Collection  string `json:"collection"`
	GroupID     string `json:"group_id"`
	DocumentsIn int    `json:"documents_in"`
	Queries     int    `json:"queries"`
}

// BenchmarkIndexing summarizes one run's ingestion phase.
type BenchmarkIndexing struct {
	TotalTimeSecs          float64 `json:"total_time_secs"`
	ThroughputChunksPerSec float64 `json:"throughput_chunks_per_sec"`
	PointsStored           int     `json:"points_stored"`
	SuccessRate            float64 `json:"success_rate"`
}

// BenchmarkLatency is a percentile/extrema breakdown of per-query latency.
type BenchmarkLatency struct {
	MinMS float64 `json:"min"`
	AvgMS float64 `json:"avg"`
	P50MS float64 `json:"p50"`
	P95MS float64 `json:"p95"`
	P99MS float64 `json:"p99"`
	MaxMS float64 `json:"max"`
}

// BenchmarkSearch summarizes one run's query phase.
type BenchmarkSearch struct {
	QPS          float64          `json:"qps"`
	LatencyMS    BenchmarkLatency `json:"latency_ms"`
	TotalResults int              `json:"total_results"`
}

// BenchmarkIndexStatus snapshots the target collection's index state after
// the run, as reported by the vector store.
type BenchmarkIndexStatus struct {
	HNSWEnabled        bool    `json:"hnsw_enabled"`
	IndexedVectors     int     `json:"indexed_vectors"`
	TotalVectors       int     `json:"total_vectors"`
	OptimizerStatus    string  `json:"optimizer_status"`
	IndexingPercentage float64 `json:"indexing_percentage"`
}

// BenchmarkSystem reports embedder-cache and tensor-pool state at the end
// of the run.
type BenchmarkSystem struct {
	CacheEntries       int     `json:"cache_entries"`
	CacheMB            float64 `json:"cache_mb"`
	PoolResidentMB     int     `json:"pool_resident_mb"`
	PoolReuseHitRate   float64 `json:"pool_reuse_hit_rate"`
	PoolForcedCleanups int     `json:"pool_forced_cleanups"`
}

// BenchmarkReport is the external JSON schema named in spec §6.
type BenchmarkReport struct {
	Config      BenchmarkConfig      `json:"config"`
	Indexing    BenchmarkIndexing    `json:"indexing"`
	Search      BenchmarkSearch      `json:"search"`
	IndexStatus BenchmarkIndexStatus `json:"index_status"`
	System      BenchmarkSystem      `json:"system"`
	Timestamp   time.Time            `json:"timestamp"`
}
