// Package scanner finds token transfers into deposit addresses, one block
// window per cycle, behind a persisted watermark.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/filter"
	"github.com/vietddude/custody/internal/indexing/metrics"
)

// EventSource is the part of the ledger gateway the scanner reads.
type EventSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	TransferEvents(ctx context.Context, from, to uint64) ([]domain.TransferEvent, error)
}

// Recorder stores a detected deposit. Recording is idempotent by tx hash.
type Recorder interface {
	RecordDeposit(ctx context.Context, txHash string, address domain.Address, amount decimal.Decimal, blockNumber uint64) (*domain.DepositRecord, error)
}

// Watermark is the persisted scan position.
type Watermark interface {
	Load(ctx context.Context, height, requiredConfirmations uint64) (uint64, error)
	Advance(ctx context.Context, block uint64) error
}

// Config holds scanner settings.
type Config struct {
	BlockBatch            uint64
	RequiredConfirmations uint64
	MinDeposit            decimal.Decimal
}

// Result describes one ScanOnce call. Scanned is false when there was
// nothing to do this cycle.
type Result struct {
	Scanned      bool
	From, To     uint64
	Events       int
	Recorded     int
	BelowMinimum int
	// Backlog is the number of blocks past To already deep enough to scan.
	Backlog uint64
}

// Scanner scans block windows for deposits.
type Scanner struct {
	source    EventSource
	recorder  Recorder
	watermark Watermark
	filter    filter.Filter
	cfg       Config
	log       *slog.Logger
}

// New creates a scanner.
func New(
	source EventSource,
	recorder Recorder,
	watermark Watermark,
	addresses filter.Filter,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	if cfg.BlockBatch == 0 {
		cfg.BlockBatch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		source:    source,
		recorder:  recorder,
		watermark: watermark,
		filter:    addresses,
		cfg:       cfg,
		log:       logger.With("component", "scanner"),
	}
}

// Window computes the next block window. ok is false when no block is
// deep enough yet.
func Window(last, height, batch, requiredConfirmations uint64) (from, to uint64, ok bool) {
	if height < requiredConfirmations {
		return 0, 0, false
	}
	safe := height - requiredConfirmations
	from = last + 1
	if safe < from {
		return 0, 0, false
	}
	to = min(from+batch-1, safe)
	return from, to, true
}

// ScanOnce scans one window and advances the watermark only when every
// deposit in it was recorded.
func (s *Scanner) ScanOnce(ctx context.Context) (Result, error) {
	var res Result

	height, err := s.source.CurrentHeight(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get height: %w", err)
	}
	metrics.ChainHeight.Set(float64(height))

	last, err := s.watermark.Load(ctx, height, s.cfg.RequiredConfirmations)
	if err != nil {
		return res, err
	}

	from, to, ok := Window(last, height, s.cfg.BlockBatch, s.cfg.RequiredConfirmations)
	if !ok {
		metrics.ScanWindowsTotal.WithLabelValues("empty").Inc()
		return res, nil
	}

	if err := s.filter.Rebuild(ctx); err != nil {
		return res, err
	}
	if s.filter.Size() == 0 {
		metrics.ScanWindowsTotal.WithLabelValues("empty").Inc()
		return res, nil
	}

	s.log.Debug("scanning blocks", "from", from, "to", to, "height", height)

	events, err := s.source.TransferEvents(ctx, from, to)
	if err != nil {
		metrics.ScanWindowsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("failed to get transfer events [%d, %d]: %w", from, to, err)
	}

	res.From, res.To, res.Events = from, to, len(events)
	for _, ev := range events {
		if !s.filter.Contains(ev.To) {
			continue
		}
		if ev.Amount.LessThan(s.cfg.MinDeposit) {
			res.BelowMinimum++
			metrics.DepositsBelowMinimum.Inc()
			s.log.Debug("deposit below minimum", "tx", ev.TxHash, "amount", ev.Amount.String(), "min", s.cfg.MinDeposit.String())
			continue
		}

		d, err := s.recorder.RecordDeposit(ctx, ev.TxHash, ev.To, ev.Amount, ev.BlockNumber)
		if err != nil {
			metrics.ScanWindowsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("failed to record %s: %w", ev.TxHash, err)
		}
		if d != nil {
			res.Recorded++
		}
	}

	if err := s.watermark.Advance(ctx, to); err != nil {
		metrics.ScanWindowsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	res.Scanned = true
	res.Backlog = height - s.cfg.RequiredConfirmations - to
	metrics.ScannerLastBlock.Set(float64(to))
	metrics.ScanWindowsTotal.WithLabelValues("ok").Inc()

	if res.Recorded > 0 {
		s.log.Info("window scanned", "from", from, "to", to, "events", res.Events, "recorded", res.Recorded)
	}
	return res, nil
}
