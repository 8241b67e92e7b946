package ai

import (
	"math"
	"sync"
)

// MetricsCounter accumulates ModelMetrics across requests. The zero value is
// ready to use. Provider clients embed it to satisfy ResetMetrics and
// GetMetrics.
type MetricsCounter struct {
	mu      sync.Mutex
	metrics ModelMetrics
}

func (m *MetricsCounter) ResetMetrics() {
	m.mu.Lock()
	m.metrics = ModelMetrics{}
	m.mu.Unlock()
}

// GetMetrics returns a snapshot of the totals since the last reset.
func (m *MetricsCounter) GetMetrics() ModelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Record adds one request's usage to the totals.
func (m *MetricsCounter) Record(in ModelMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.InputTokens += in.InputTokens
	m.metrics.OutputTokens += in.OutputTokens
	m.metrics.TotalTokens += in.TotalTokens
	m.metrics.DurationMs += in.DurationMs
	m.metrics.Requests++

	if m.metrics.DurationMs > 0 {
		tps := (float64(m.metrics.TotalTokens) * 1000.0) / float64(m.metrics.DurationMs)
		m.metrics.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}
