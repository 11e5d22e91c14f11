// Package tracker moves pending deposits toward confirmation as ledger
// depth accrues.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/worker"
	"github.com/vietddude/custody/internal/indexing/metrics"
)

// DepthSource reports how deep a transaction is.
type DepthSource interface {
	ReceiptConfirmations(ctx context.Context, txHash string) (uint64, error)
}

// Ledger is the deposit ledger as seen by the tracker.
type Ledger interface {
	ListPending(ctx context.Context) ([]*domain.DepositRecord, error)
	AdvanceConfirmations(ctx context.Context, id string, confirmations uint64) error
	CommitConfirmation(ctx context.Context, id string) (bool, error)
}

// Tracker updates confirmation counts and triggers the credit.
type Tracker struct {
	source   DepthSource
	ledger   Ledger
	pool     *worker.Pool
	required uint64
	log      *slog.Logger
}

// Result summarizes one TrackOnce call.
type Result struct {
	Checked   int
	Confirmed int
	Failed    int
}

// New creates a tracker.
func New(source DepthSource, ledger Ledger, pool *worker.Pool, requiredConfirmations uint64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = worker.NewPool("tracker", 1, logger)
	}
	return &Tracker{
		source:   source,
		ledger:   ledger,
		pool:     pool,
		required: requiredConfirmations,
		log:      logger.With("component", "tracker"),
	}
}

// TrackOnce checks every pending deposit. A failing record does not stop
// the others.
func (t *Tracker) TrackOnce(ctx context.Context) (Result, error) {
	pending, err := t.ledger.ListPending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list pending deposits: %w", err)
	}
	metrics.DepositsPending.Set(float64(len(pending)))

	var confirmed int
	results := make(chan bool, len(pending))
	run := worker.ForEach(ctx, t.pool, pending, func(ctx context.Context, d *domain.DepositRecord) error {
		credited, err := t.track(ctx, d)
		if err != nil {
			return fmt.Errorf("deposit %s: %w", d.ID, err)
		}
		results <- credited
		return nil
	})
	close(results)
	for ok := range results {
		if ok {
			confirmed++
		}
	}

	return Result{Checked: run.Processed, Confirmed: confirmed, Failed: run.Failed}, nil
}

func (t *Tracker) track(ctx context.Context, d *domain.DepositRecord) (bool, error) {
	depth, err := t.source.ReceiptConfirmations(ctx, d.TxHash)
	if err != nil {
		return false, err
	}

	if depth != d.Confirmations {
		if err := t.ledger.AdvanceConfirmations(ctx, d.ID, depth); err != nil {
			return false, err
		}
	}

	if depth < t.required {
		return false, nil
	}
	return t.ledger.CommitConfirmation(ctx, d.ID)
}
