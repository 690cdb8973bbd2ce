package batcher

import "sync"

// Metrics is a snapshot of EmbeddingBatcher's internal counters, exposed for
// health/diagnostics endpoints.
type Metrics struct {
	QueueDepth        int
	ProcessedTotal    int64
	FailedTotal       int64
	AvgBatchLatencyMS float64
}

type metricsTracker struct {
	mu             sync.Mutex
	processedTotal int64
	failedTotal    int64
	latencySumMS   float64
	latencyCount   int64
}

func (m *metricsTracker) recordSuccess(latencyMS float64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processedTotal += int64(count)
	m.latencySumMS += latencyMS
	m.latencyCount++
}

func (m *metricsTracker) recordFailure(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedTotal += int64(count)
}

func (m *metricsTracker) snapshot(queueDepth int) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	avg := 0.0
	if m.latencyCount > 0 {
		avg = m.latencySumMS / float64(m.latencyCount)
	}
	return Metrics{
		QueueDepth:        queueDepth,
		ProcessedTotal:    m.processedTotal,
		FailedTotal:       m.failedTotal,
		AvgBatchLatencyMS: avg,
	}
}
