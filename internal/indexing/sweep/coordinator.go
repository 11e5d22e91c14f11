// Package sweep consolidates confirmed deposits into the hot wallet and
// handles hot wallet withdrawals.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/worker"
	"github.com/vietddude/custody/internal/indexing/metrics"
	"github.com/vietddude/custody/internal/infra/chain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// Decrypter opens encrypted wallet secrets.
type Decrypter interface {
	Decrypt(envelope string) (string, error)
}

// FundingGuard marks addresses with a gas top-up in flight. Acquire returns
// a holder token, or "" when the address is already held.
type FundingGuard interface {
	Acquire(ctx context.Context, address domain.Address, ttl time.Duration) (string, error)
	Release(ctx context.Context, address domain.Address, token string) error
}

// Config holds sweep settings. ReceiptTimeout is the gateway's wait for a
// sent transaction to be mined.
type Config struct {
	TopUpMultiplier decimal.Decimal
	FundingTimeout  time.Duration
	FundingPoll     time.Duration
	ReceiptTimeout  time.Duration
}

// Deps are the collaborators of a Coordinator. Guard and Pool are optional.
type Deps struct {
	Gateway     chain.Gateway
	Transactor  storage.Transactor
	Wallets     storage.WalletRepository
	Deposits    storage.DepositRepository
	HotWallet   storage.HotWalletRepository
	Withdrawals storage.WithdrawalRepository
	Vault       Decrypter
	Guard       FundingGuard
	Pool        *worker.Pool
}

// Coordinator moves deposited funds to the hot wallet.
type Coordinator struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

// Result summarizes one SweepOnce call.
type Result struct {
	Swept   int
	Settled int
	Skipped int
	Failed  int
}

// NewCoordinator creates a sweep coordinator.
func NewCoordinator(deps Deps, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopUpMultiplier.IsZero() {
		cfg.TopUpMultiplier = decimal.RequireFromString("1.5")
	}
	if cfg.FundingTimeout == 0 {
		cfg.FundingTimeout = 60 * time.Second
	}
	if cfg.FundingPoll == 0 {
		cfg.FundingPoll = 3 * time.Second
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if deps.Pool == nil {
		deps.Pool = worker.NewPool("sweep", 1, logger)
	}
	return &Coordinator{
		deps: deps,
		cfg:  cfg,
		log:  logger.With("component", "sweep"),
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSwept
	outcomeSettled
	outcomeFailed
)

// SweepOnce resolves withdrawals left in flight, then sweeps every
// confirmed, unswept deposit. Deposits of the same wallet are handled one
// after another, wallets in parallel.
func (c *Coordinator) SweepOnce(ctx context.Context) (Result, error) {
	if _, err := c.ReconcileWithdrawals(ctx); err != nil {
		c.log.Warn("withdrawal reconciliation failed", "error", err)
	}

	records, err := c.deps.Deposits.ListUnsweptConfirmed(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list sweepable deposits: %w", err)
	}

	groups := groupByWallet(records)
	outcomes := make(chan outcome, len(records))

	worker.ForEach(ctx, c.deps.Pool, groups, func(ctx context.Context, group []*domain.DepositRecord) error {
		for _, d := range group {
			if ctx.Err() != nil {
				return nil
			}
			o, _, err := c.sweep(ctx, d.ID)
			if err != nil {
				c.log.Warn("sweep failed", "deposit", d.ID, "wallet", d.WalletID, "error", err)
				metrics.SweepsTotal.WithLabelValues("failed").Inc()
				o = outcomeFailed
			}
			outcomes <- o
		}
		return nil
	})
	close(outcomes)

	var res Result
	for o := range outcomes {
		switch o {
		case outcomeSwept:
			res.Swept++
		case outcomeSettled:
			res.Settled++
		case outcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res, ctx.Err()
}

func groupByWallet(records []*domain.DepositRecord) [][]*domain.DepositRecord {
	index := make(map[string]int)
	var groups [][]*domain.DepositRecord
	for _, d := range records {
		i, ok := index[d.WalletID]
		if !ok {
			i = len(groups)
			index[d.WalletID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], d)
	}
	return groups
}

// Sweep moves the full token balance of the deposit's address to the hot
// wallet and marks the deposit swept. Returns "" when there was nothing to do.
func (c *Coordinator) Sweep(ctx context.Context, depositID string) (string, error) {
	_, hash, err := c.sweep(ctx, depositID)
	return hash, err
}

func (c *Coordinator) sweep(ctx context.Context, depositID string) (outcome, string, error) {
	// The unit of work outlives cancellation: once a transfer is sent its
	// result must be recorded.
	txCtx := context.WithoutCancel(ctx)

	uow, err := c.deps.Transactor.Begin(txCtx)
	if err != nil {
		return outcomeSkipped, "", fmt.Errorf("failed to begin: %w", err)
	}
	defer uow.Rollback()

	// Waiting for the row lock may be abandoned on shutdown; nothing has
	// been sent yet.
	d, err := uow.LockDeposit(ctx, depositID)
	if err != nil {
		return outcomeSkipped, "", fmt.Errorf("failed to lock deposit: %w", err)
	}
	if d == nil || !d.Sweepable() {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped, "", nil
	}

	if d.PendingSweepTxHash != "" {
		o, hash, resolved, err := c.resolvePending(ctx, txCtx, uow, d)
		if err != nil || resolved {
			return o, hash, err
		}
	}

	wallet, err := c.deps.Wallets.GetByID(ctx, d.WalletID)
	if err != nil {
		return outcomeSkipped, "", fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return outcomeSkipped, "", fmt.Errorf("wallet %s: %w", d.WalletID, domain.ErrNotFound)
	}

	secret, err := c.deps.Vault.Decrypt(wallet.EncryptedSecret)
	if err != nil {
		return outcomeSkipped, "", fmt.Errorf("wallet %s secret: %w", wallet.ID, err)
	}

	hot, err := c.hotWallet(ctx)
	if err != nil {
		return outcomeSkipped, "", err
	}

	native, err := c.deps.Gateway.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return outcomeSkipped, "", err
	}
	cost, err := c.deps.Gateway.EstimateTransferGasCost(ctx)
	if err != nil {
		return outcomeSkipped, "", err
	}

	if native.LessThan(cost) {
		if err := c.fundGas(ctx, hot, wallet.Address, cost); err != nil {
			return outcomeSkipped, "", err
		}
	}

	balance, err := c.deps.Gateway.TokenBalance(ctx, wallet.Address)
	if err != nil {
		return outcomeSkipped, "", err
	}

	if !balance.IsPositive() {
		return c.settle(ctx, txCtx, uow, d)
	}

	if err := ctx.Err(); err != nil {
		return outcomeSkipped, "", err
	}

	hash, err := c.deps.Gateway.SendTokenTransfer(txCtx, secret, hot.Address, balance)
	if inFlight(hash, err) {
		if recErr := uow.RecordPendingSweep(txCtx, d.ID, hash); recErr != nil {
			return outcomeSkipped, hash, fmt.Errorf("sweep %s in flight, not recorded: %w", hash, recErr)
		}
		if cmErr := uow.Commit(); cmErr != nil {
			return outcomeSkipped, hash, fmt.Errorf("sweep %s in flight, not recorded: %w", hash, cmErr)
		}
		c.log.Warn("sweep broadcast but not confirmed", "deposit", d.ID, "tx", hash, "error", err)
		return outcomeSkipped, hash, fmt.Errorf("sweep transfer %s: %w", hash, err)
	}
	if err != nil {
		return outcomeSkipped, hash, fmt.Errorf("sweep transfer: %w", err)
	}

	if err := uow.MarkSwept(txCtx, d.ID, hash); err != nil {
		return outcomeSkipped, hash, fmt.Errorf("failed to mark swept after transfer %s: %w", hash, err)
	}
	if err := uow.Commit(); err != nil {
		return outcomeSkipped, hash, fmt.Errorf("failed to commit sweep %s: %w", hash, err)
	}

	metrics.SweepsTotal.WithLabelValues("swept").Inc()
	c.log.Info("deposit swept",
		"deposit", d.ID, "wallet", wallet.ID, "amount", balance.String(), "tx", hash)
	return outcomeSwept, hash, nil
}

// resolvePending checks the sweep recorded as in flight for d. A mined
// sweep marks the deposit swept by it. A reverted one lets the sweep run
// again. While it is unresolved the deposit is left alone, since the
// transfer may still land.
func (c *Coordinator) resolvePending(ctx, txCtx context.Context, uow storage.UnitOfWork, d *domain.DepositRecord) (outcome, string, bool, error) {
	hash := d.PendingSweepTxHash
	res, err := c.deps.Gateway.TransactionOutcome(ctx, hash)
	if err != nil {
		return outcomeSkipped, "", true, fmt.Errorf("pending sweep %s: %w", hash, err)
	}

	switch res.State {
	case domain.TxSucceeded:
		if err := uow.MarkSwept(txCtx, d.ID, hash); err != nil {
			return outcomeSkipped, "", true, err
		}
		if err := uow.Commit(); err != nil {
			return outcomeSkipped, "", true, fmt.Errorf("failed to commit sweep %s: %w", hash, err)
		}
		metrics.SweepsTotal.WithLabelValues("swept").Inc()
		c.log.Info("pending sweep confirmed", "deposit", d.ID, "tx", hash, "block", res.BlockNumber)
		return outcomeSwept, hash, true, nil
	case domain.TxReverted:
		c.log.Warn("pending sweep reverted, sweeping again", "deposit", d.ID, "tx", hash)
		return outcomeSkipped, "", false, nil
	default:
		c.log.Info("sweep still in flight", "deposit", d.ID, "tx", hash)
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped, "", true, nil
	}
}

// settle handles a deposit whose address is already empty. A full-balance
// sweep of the same wallet mined after the deposit's block carried these
// funds, and the deposit is marked with its hash. Otherwise the deposit
// stays unswept.
func (c *Coordinator) settle(ctx, txCtx context.Context, uow storage.UnitOfWork, d *domain.DepositRecord) (outcome, string, error) {
	prev, err := c.deps.Deposits.LatestSweepTxHash(ctx, d.WalletID)
	if err != nil {
		return outcomeSkipped, "", err
	}
	if prev == "" {
		c.log.Debug("nothing to sweep", "deposit", d.ID, "wallet", d.WalletID)
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped, "", nil
	}

	res, err := c.deps.Gateway.TransactionOutcome(ctx, prev)
	if err != nil {
		return outcomeSkipped, "", err
	}
	if res.State != domain.TxSucceeded || res.BlockNumber <= d.BlockNumber {
		c.log.Warn("deposit address empty and no later sweep found",
			"deposit", d.ID, "block", d.BlockNumber, "latest_sweep", prev, "sweep_block", res.BlockNumber)
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped, "", nil
	}

	if err := uow.MarkSwept(txCtx, d.ID, prev); err != nil {
		return outcomeSkipped, "", err
	}
	if err := uow.Commit(); err != nil {
		return outcomeSkipped, "", fmt.Errorf("failed to commit settlement: %w", err)
	}

	metrics.SweepsTotal.WithLabelValues("settled").Inc()
	c.log.Info("deposit settled by earlier sweep", "deposit", d.ID, "tx", prev, "sweep_block", res.BlockNumber)
	return outcomeSettled, prev, nil
}

// inFlight reports whether a send failed after broadcast with an unknown
// outcome. A reverted transfer is a definite failure and does not count.
func inFlight(hash string, err error) bool {
	var transient *domain.TransientGatewayError
	return hash != "" && errors.As(err, &transient)
}

type hotWallet struct {
	Address domain.Address
	secret  string
}

func (c *Coordinator) hotWallet(ctx context.Context) (*hotWallet, error) {
	hot, err := c.deps.HotWallet.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get hot wallet: %w", err)
	}
	if hot == nil {
		return nil, domain.ErrHotWalletNotConfigured
	}
	secret, err := c.deps.Vault.Decrypt(hot.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("hot wallet secret: %w", err)
	}
	return &hotWallet{Address: hot.Address, secret: secret}, nil
}
