package cursor

import (
	"time"
)

// advanceRecord holds timing data for one watermark advance.
type advanceRecord struct {
	Block      uint64
	AdvancedAt time.Time
}

// Metrics holds scan throughput data.
type Metrics struct {
	BlocksPerSecond float64
	LastAdvanceAt   *time.Time
	Advances        int
}

// MetricsCollector tracks watermark movement over a sliding window.
type MetricsCollector struct {
	windowSize int
	advances   []advanceRecord
}

// RecordAdvance records a watermark advance.
func (mc *MetricsCollector) RecordAdvance(block uint64, at time.Time) {
	record := advanceRecord{Block: block, AdvancedAt: at}

	if len(mc.advances) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.advances, mc.advances[1:])
		mc.advances[len(mc.advances)-1] = record
	} else {
		mc.advances = append(mc.advances, record)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{Advances: len(mc.advances)}
	if len(mc.advances) == 0 {
		return m
	}

	last := mc.advances[len(mc.advances)-1]
	at := last.AdvancedAt
	m.LastAdvanceAt = &at

	if len(mc.advances) >= 2 {
		first := mc.advances[0]
		duration := last.AdvancedAt.Sub(first.AdvancedAt)
		if duration > 0 && last.Block > first.Block {
			m.BlocksPerSecond = float64(last.Block-first.Block) / duration.Seconds()
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.advances = mc.advances[:0]
}
