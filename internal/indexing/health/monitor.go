package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/custody/internal/core/cursor"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// HeightSource fetches the latest block height.
type HeightSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Watermark exposes the scanner position.
type Watermark interface {
	Last() (uint64, error)
	Lag(height uint64) uint64
	GetMetrics() cursor.Metrics
}

// DepositCounter lists deposits still owing work.
type DepositCounter interface {
	ListPending(ctx context.Context) ([]*domain.DepositRecord, error)
	ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error)
}

const (
	degradedLag = 10
	criticalLag = 100
	cacheFor    = 10 * time.Second
)

// Monitor aggregates health status from the engine's collaborators.
type Monitor struct {
	heights    HeightSource
	watermark  Watermark
	store      storage.Pinger
	deposits   DepositCounter
	required   uint64
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	heights HeightSource,
	watermark Watermark,
	store storage.Pinger,
	deposits DepositCounter,
	requiredConfirmations uint64,
) *Monitor {
	return &Monitor{
		heights:   heights,
		watermark: watermark,
		store:     store,
		deposits:  deposits,
		required:  requiredConfirmations,
	}
}

// CheckHealth builds a report. Results are cached for a few seconds so
// health checks do not hammer the RPC endpoint.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < cacheFor {
		return *m.lastReport
	}

	report := Report{Status: StatusHealthy, StoreReachable: true}

	if err := m.store.Ping(ctx); err != nil {
		report.StoreReachable = false
		report.Errors = append(report.Errors, "store: "+err.Error())
	}

	height, err := m.heights.CurrentHeight(ctx)
	chainOK := err == nil
	if err != nil {
		report.Errors = append(report.Errors, "chain: "+err.Error())
	} else {
		report.ChainHeight = height
		if last, err := m.watermark.Last(); err == nil {
			report.ScannerLastBlock = last
			lag := m.watermark.Lag(height)
			if lag > m.required {
				report.BlockLag = lag - m.required
			}
		}
	}
	report.BlocksPerSecond = m.watermark.GetMetrics().BlocksPerSecond

	if report.StoreReachable {
		if pending, err := m.deposits.ListPending(ctx); err == nil {
			report.PendingDeposits = len(pending)
		}
		if unswept, err := m.deposits.ListUnsweptConfirmed(ctx); err == nil {
			report.UnsweptDeposits = len(unswept)
		}
	}

	report.Status = evaluate(report, chainOK)

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func evaluate(r Report, chainReachable bool) SystemStatus {
	switch {
	case !r.StoreReachable || r.BlockLag > criticalLag:
		return StatusCritical
	case !chainReachable || r.BlockLag > degradedLag:
		return StatusDegraded
	}
	return StatusHealthy
}
