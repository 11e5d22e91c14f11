// Package ledger records deposits and credits wallets exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/metrics"
	"github.com/vietddude/custody/internal/infra/storage"
)

// Ledger owns the deposit records and the credited wallet balances.
type Ledger struct {
	wallets  storage.WalletRepository
	deposits storage.DepositRepository
	tx       storage.Transactor
	log      *slog.Logger
}

// New creates a deposit ledger.
func New(
	wallets storage.WalletRepository,
	deposits storage.DepositRepository,
	tx storage.Transactor,
	logger *slog.Logger,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		wallets:  wallets,
		deposits: deposits,
		tx:       tx,
		log:      logger.With("component", "ledger"),
	}
}

// RecordDeposit stores a pending deposit for the wallet owning address.
// Returns nil without error when the address is unknown or the tx hash was
// already recorded.
func (l *Ledger) RecordDeposit(
	ctx context.Context,
	txHash string,
	address domain.Address,
	amount decimal.Decimal,
	blockNumber uint64,
) (*domain.DepositRecord, error) {
	wallet, err := l.wallets.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet: %w", err)
	}
	if wallet == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	d := &domain.DepositRecord{
		ID:          uuid.NewString(),
		TxHash:      txHash,
		WalletID:    wallet.ID,
		Amount:      amount,
		BlockNumber: blockNumber,
		Status:      domain.DepositStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = l.deposits.Insert(ctx, d)
	if errors.Is(err, domain.ErrDuplicateDeposit) {
		l.log.Debug("deposit already recorded", "tx", txHash)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	metrics.DepositsRecorded.Inc()
	l.log.Info("deposit recorded",
		"id", d.ID, "tx", txHash, "wallet", wallet.ID, "amount", amount.String(), "block", blockNumber)
	return d, nil
}

// AdvanceConfirmations overwrites the stored confirmation count.
func (l *Ledger) AdvanceConfirmations(ctx context.Context, id string, confirmations uint64) error {
	if err := l.deposits.UpdateConfirmations(ctx, id, confirmations); err != nil {
		return fmt.Errorf("failed to update confirmations: %w", err)
	}
	return nil
}

// CommitConfirmation marks a pending deposit confirmed and credits its wallet
// in one unit of work. Reports whether this call did the credit; a missing
// or already confirmed deposit is a no-op.
func (l *Ledger) CommitConfirmation(ctx context.Context, id string) (bool, error) {
	uow, err := l.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin: %w", err)
	}
	defer uow.Rollback()

	d, err := uow.LockDeposit(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to lock deposit %s: %w", id, err)
	}
	if d == nil || d.IsConfirmed() {
		return false, nil
	}

	if err := uow.ConfirmDeposit(ctx, id); err != nil {
		return false, fmt.Errorf("failed to confirm deposit %s: %w", id, err)
	}
	if err := uow.CreditWallet(ctx, d.WalletID, d.Amount); err != nil {
		return false, fmt.Errorf("failed to credit wallet %s: %w", d.WalletID, err)
	}
	if err := uow.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	metrics.DepositsConfirmed.Inc()
	l.log.Info("deposit confirmed", "id", id, "wallet", d.WalletID, "amount", d.Amount.String())
	return true, nil
}

// ListPending returns deposits awaiting confirmation.
func (l *Ledger) ListPending(ctx context.Context) ([]*domain.DepositRecord, error) {
	return l.deposits.ListPending(ctx)
}

// ListUnsweptConfirmed returns confirmed deposits still on their address, oldest first.
func (l *Ledger) ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error) {
	return l.deposits.ListUnsweptConfirmed(ctx)
}

// DepositsByWallet returns the most recent deposits of a wallet.
func (l *Ledger) DepositsByWallet(ctx context.Context, walletID string, limit int) ([]*domain.DepositRecord, error) {
	return l.deposits.ListByWallet(ctx, walletID, limit)
}
