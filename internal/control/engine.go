package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/metrics"
	"github.com/vietddude/custody/internal/indexing/scanner"
	"github.com/vietddude/custody/internal/indexing/sweep"
	"github.com/vietddude/custody/internal/indexing/throttle"
	"github.com/vietddude/custody/internal/indexing/tracker"
	"github.com/vietddude/custody/internal/infra/storage"
)

// Scanner runs the scan phase.
type Scanner interface {
	ScanOnce(ctx context.Context) (scanner.Result, error)
}

// Tracker runs the confirmation phase.
type Tracker interface {
	TrackOnce(ctx context.Context) (tracker.Result, error)
}

// Sweeper runs the sweep phase.
type Sweeper interface {
	SweepOnce(ctx context.Context) (sweep.Result, error)
}

// EngineConfig holds the driver settings.
type EngineConfig struct {
	PollInterval     time.Duration
	MaxStoreFailures int
	// CatchUpInterval is the shortest delay between cycles while the scanner
	// is behind. Zero keeps a fixed PollInterval.
	CatchUpInterval time.Duration
}

// Engine is the single periodic driver: every cycle pings the store, then
// runs scan, track and sweep one after another.
type Engine struct {
	store    storage.Pinger
	scanner  Scanner
	tracker  Tracker
	sweeper  Sweeper
	cfg      EngineConfig
	throttle *throttle.Controller
	failures int
	backlog  uint64
	log      *slog.Logger
}

// NewEngine creates the driver.
func NewEngine(store storage.Pinger, sc Scanner, tr Tracker, sw Sweeper, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.MaxStoreFailures <= 0 {
		cfg.MaxStoreFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	tc := throttle.DefaultConfig(cfg.PollInterval)
	tc.Enabled = cfg.CatchUpInterval > 0
	tc.MinInterval = cfg.CatchUpInterval

	return &Engine{
		store:    store,
		scanner:  sc,
		tracker:  tr,
		sweeper:  sw,
		cfg:      cfg,
		throttle: throttle.NewController(tc),
		log:      logger.With("component", "engine"),
	}
}

// Run drives cycles until ctx is cancelled. It returns a
// *domain.PersistenceError once the store failed too many cycles in a row.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started", "interval", e.cfg.PollInterval, "catch_up_interval", e.cfg.CatchUpInterval)

	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()

	for {
		if err := e.RunCycle(ctx); err != nil {
			return err
		}
		timer.Reset(e.NextDelay())
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case <-timer.C:
		}
	}
}

// NextDelay returns how long to wait before the next cycle. It shrinks
// while the last scan left deep-enough blocks behind.
func (e *Engine) NextDelay() time.Duration {
	return e.throttle.ComputeInterval(e.backlog)
}

// RunCycle runs one cycle. Phase failures are logged and do not stop the
// cycle; only a persistently unreachable store is returned.
func (e *Engine) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	if err := e.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.failures++
		e.backlog = 0
		metrics.StoreFailures.Set(float64(e.failures))
		e.log.Error("store unreachable, skipping cycle",
			"failures", e.failures, "max", e.cfg.MaxStoreFailures, "error", err)
		if e.failures >= e.cfg.MaxStoreFailures {
			return &domain.PersistenceError{Err: err}
		}
		return nil
	}
	e.failures = 0
	metrics.StoreFailures.Set(0)

	e.backlog = 0
	if res, err := e.scanner.ScanOnce(ctx); err != nil {
		e.phaseFailed(ctx, "scan", err)
	} else if res.Scanned {
		e.backlog = res.Backlog
		e.log.Debug("scan phase done",
			"from", res.From, "to", res.To, "recorded", res.Recorded, "backlog", res.Backlog)
	}
	if ctx.Err() != nil {
		return nil
	}

	if res, err := e.tracker.TrackOnce(ctx); err != nil {
		e.phaseFailed(ctx, "track", err)
	} else if res.Checked > 0 {
		e.log.Debug("track phase done", "checked", res.Checked, "confirmed", res.Confirmed, "failed", res.Failed)
	}
	if ctx.Err() != nil {
		return nil
	}

	if res, err := e.sweeper.SweepOnce(ctx); err != nil {
		e.phaseFailed(ctx, "sweep", err)
	} else if res != (sweep.Result{}) {
		e.log.Info("sweep phase done",
			"swept", res.Swept, "settled", res.Settled, "skipped", res.Skipped, "failed", res.Failed)
	}
	return nil
}

func (e *Engine) phaseFailed(ctx context.Context, phase string, err error) {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	var transient *domain.TransientGatewayError
	if errors.As(err, &transient) {
		e.log.Warn("phase skipped, ledger unavailable", "phase", phase, "error", err)
		return
	}
	e.log.Error("phase failed", "phase", phase, "error", err)
}
