package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// UnitOfWork bundles operations into a single database transaction,
// ensuring atomicity (all succeed or all fail). Rows locked with
// LockDeposit stay locked until the transaction ends.
type UnitOfWork struct {
	tx *sqlx.Tx
}

// Begin starts a unit of work with an active transaction.
func (db *DB) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// LockDeposit reads the deposit with SELECT ... FOR UPDATE.
func (u *UnitOfWork) LockDeposit(ctx context.Context, id string) (*domain.DepositRecord, error) {
	if u.tx == nil {
		return nil, storage.ErrTxDone
	}
	var row depositRow
	err := u.tx.GetContext(ctx, &row, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock deposit: %w", err)
	}
	return row.toDomain()
}

// ConfirmDeposit sets the deposit status to confirmed.
func (u *UnitOfWork) ConfirmDeposit(ctx context.Context, id string) error {
	return u.exec(ctx, "confirm deposit",
		`UPDATE deposits SET status = 'confirmed', updated_at = NOW() WHERE id = $1`, id)
}

// CreditWallet increases the wallet balance.
func (u *UnitOfWork) CreditWallet(ctx context.Context, walletID string, amount decimal.Decimal) error {
	return u.exec(ctx, "credit wallet",
		`UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, walletID, amount)
}

// MarkSwept flags the deposit as swept.
func (u *UnitOfWork) MarkSwept(ctx context.Context, id string, sweepTxHash string) error {
	return u.exec(ctx, "mark swept",
		`UPDATE deposits SET swept = TRUE, sweep_tx_hash = $2, updated_at = NOW() WHERE id = $1`, id, sweepTxHash)
}

// RecordPendingSweep stores a broadcast sweep with an unknown outcome.
func (u *UnitOfWork) RecordPendingSweep(ctx context.Context, id string, sweepTxHash string) error {
	return u.exec(ctx, "record pending sweep",
		`UPDATE deposits SET pending_sweep_tx_hash = $2, updated_at = NOW() WHERE id = $1`, id, sweepTxHash)
}

func (u *UnitOfWork) exec(ctx context.Context, op, query string, args ...any) error {
	if u.tx == nil {
		return storage.ErrTxDone
	}
	res, err := u.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to %s: %w", op, domain.ErrNotFound)
	}
	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return storage.ErrTxDone
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}
