// Package cursor keeps the scan watermark: the last block whose deposits
// have been recorded.
//
// # Rules
//
//   - Cold start: the persisted value is used when present, otherwise the
//     watermark starts at currentHeight - requiredConfirmations, so the
//     first scan only looks at blocks that are already deep enough.
//   - Advance is monotonic and only called after every deposit of the
//     window was recorded. A failed window leaves the watermark untouched
//     and the same window is scanned again next cycle.
//   - Reset is the operator escape hatch (reset-cursor command) and may
//     move the watermark backwards; recording is idempotent by tx hash.
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo, cursor.DefaultName)
//
//	last, _ := manager.Load(ctx, height, 12)
//	// scan [last+1, to] ...
//	manager.Advance(ctx, to)
package cursor

import (
	"github.com/vietddude/custody/internal/core/domain"
)

// DefaultName is the name of the deposit scan cursor.
const DefaultName = "deposit_scanner"

// Cursor is re-exported from the domain package.
type Cursor = domain.Cursor

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		advances:   make([]advanceRecord, 0, windowSize),
	}
}
