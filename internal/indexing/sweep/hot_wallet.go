package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/metrics"
)

// HotWalletBalances returns the on-chain balances of the hot wallet.
func (c *Coordinator) HotWalletBalances(ctx context.Context) (*domain.HotWalletBalances, error) {
	hot, err := c.deps.HotWallet.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get hot wallet: %w", err)
	}
	if hot == nil {
		return nil, domain.ErrHotWalletNotConfigured
	}

	token, err := c.deps.Gateway.TokenBalance(ctx, hot.Address)
	if err != nil {
		return nil, err
	}
	native, err := c.deps.Gateway.NativeBalance(ctx, hot.Address)
	if err != nil {
		return nil, err
	}
	return &domain.HotWalletBalances{Address: hot.Address, TokenBalance: token, NativeBalance: native}, nil
}

// Withdraw sends tokens from the hot wallet. Every attempt past validation
// leaves a withdrawal record, failed ones with the reason.
func (c *Coordinator) Withdraw(ctx context.Context, to domain.Address, amount decimal.Decimal, notes string) (*domain.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %s", amount)
	}
	hot, err := c.hotWallet(ctx)
	if err != nil {
		return nil, err
	}

	w := &domain.Withdrawal{
		ID:        uuid.NewString(),
		ToAddress: to,
		Amount:    amount,
		Status:    domain.WithdrawalStatusPending,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.deps.Withdrawals.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	// Bookkeeping from here on must survive cancellation
	txCtx := context.WithoutCancel(ctx)

	hash, err := c.sendWithdrawal(ctx, hot, to, amount)
	if inFlight(hash, err) {
		// Sent, outcome unknown: the record stays pending so it is not retried.
		if markErr := c.deps.Withdrawals.MarkBroadcast(txCtx, w.ID, hash); markErr != nil {
			c.log.Error("failed to record withdrawal broadcast", "id", w.ID, "tx", hash, "error", markErr)
		}
		metrics.WithdrawalsTotal.WithLabelValues(string(domain.WithdrawalStatusPending)).Inc()
		c.log.Warn("withdrawal broadcast but not confirmed", "id", w.ID, "to", to, "tx", hash, "error", err)
		return c.reload(txCtx, w), err
	}
	if err != nil {
		if markErr := c.deps.Withdrawals.MarkFailed(txCtx, w.ID, failureReason(err)); markErr != nil {
			c.log.Error("failed to mark withdrawal failed", "id", w.ID, "error", markErr)
		}
		metrics.WithdrawalsTotal.WithLabelValues(string(domain.WithdrawalStatusFailed)).Inc()
		c.log.Warn("withdrawal failed", "id", w.ID, "to", to, "amount", amount.String(), "error", err)
		return c.reload(txCtx, w), err
	}

	if err := c.deps.Withdrawals.MarkCompleted(txCtx, w.ID, hash); err != nil {
		return nil, fmt.Errorf("withdrawal %s sent as %s but not recorded: %w", w.ID, hash, err)
	}
	metrics.WithdrawalsTotal.WithLabelValues(string(domain.WithdrawalStatusCompleted)).Inc()
	c.log.Info("withdrawal completed", "id", w.ID, "to", to, "amount", amount.String(), "tx", hash)
	return c.reload(txCtx, w), nil
}

func (c *Coordinator) sendWithdrawal(ctx context.Context, hot *hotWallet, to domain.Address, amount decimal.Decimal) (string, error) {
	token, err := c.deps.Gateway.TokenBalance(ctx, hot.Address)
	if err != nil {
		return "", err
	}
	if token.LessThan(amount) {
		return "", &domain.InsufficientBalanceError{Address: hot.Address, Have: token, Need: amount}
	}

	native, err := c.deps.Gateway.NativeBalance(ctx, hot.Address)
	if err != nil {
		return "", err
	}
	cost, err := c.deps.Gateway.EstimateTransferGasCost(ctx)
	if err != nil {
		return "", err
	}
	if native.LessThan(cost) {
		return "", &domain.InsufficientGasError{Address: hot.Address, Have: native, Need: cost}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.deps.Gateway.SendTokenTransfer(context.WithoutCancel(ctx), hot.secret, to, amount)
}

func failureReason(err error) string {
	var gasErr *domain.InsufficientGasError
	var balErr *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &gasErr):
		return "insufficient native balance for gas"
	case errors.As(err, &balErr):
		return fmt.Sprintf("insufficient token balance (%s)", balErr.Have)
	default:
		return err.Error()
	}
}

func (c *Coordinator) reload(ctx context.Context, w *domain.Withdrawal) *domain.Withdrawal {
	got, err := c.deps.Withdrawals.GetByID(ctx, w.ID)
	if err != nil || got == nil {
		return w
	}
	return got
}

// ReconcileWithdrawals settles withdrawals whose transfer was broadcast
// without a known outcome. Returns how many were settled.
func (c *Coordinator) ReconcileWithdrawals(ctx context.Context) (int, error) {
	pending, err := c.deps.Withdrawals.ListBroadcast(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list broadcast withdrawals: %w", err)
	}

	settled := 0
	for _, w := range pending {
		res, err := c.deps.Gateway.TransactionOutcome(ctx, w.TxHash)
		if err != nil {
			c.log.Warn("withdrawal outcome unavailable", "id", w.ID, "tx", w.TxHash, "error", err)
			continue
		}

		switch res.State {
		case domain.TxSucceeded:
			err = c.deps.Withdrawals.MarkCompleted(ctx, w.ID, w.TxHash)
		case domain.TxReverted:
			err = c.deps.Withdrawals.MarkFailed(ctx, w.ID, fmt.Sprintf("transaction %s reverted", w.TxHash))
		default:
			continue
		}
		if err != nil {
			c.log.Error("failed to settle withdrawal", "id", w.ID, "tx", w.TxHash, "error", err)
			continue
		}

		settled++
		status := domain.WithdrawalStatusCompleted
		if res.State == domain.TxReverted {
			status = domain.WithdrawalStatusFailed
		}
		metrics.WithdrawalsTotal.WithLabelValues(string(status)).Inc()
		c.log.Info("withdrawal settled", "id", w.ID, "tx", w.TxHash, "status", status)
	}
	return settled, nil
}

// Withdrawals returns the most recent withdrawals.
func (c *Coordinator) Withdrawals(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	return c.deps.Withdrawals.List(ctx, limit)
}
