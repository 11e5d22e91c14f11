package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
)

type withdrawalRow struct {
	ID            string          `db:"id"`
	ToAddress     string          `db:"to_address"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	TxHash        sql.NullString  `db:"tx_hash"`
	Notes         string          `db:"notes"`
	FailureReason sql.NullString  `db:"failure_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	CompletedAt   sql.NullTime    `db:"completed_at"`
}

func (r withdrawalRow) toDomain() (*domain.Withdrawal, error) {
	status, err := domain.ParseWithdrawalStatus(r.Status)
	if err != nil {
		return nil, err
	}
	w := &domain.Withdrawal{
		ID:            r.ID,
		ToAddress:     domain.Address(r.ToAddress),
		Amount:        r.Amount,
		Status:        status,
		TxHash:        r.TxHash.String,
		Notes:         r.Notes,
		FailureReason: r.FailureReason.String,
		CreatedAt:     r.CreatedAt,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		w.CompletedAt = &t
	}
	return w, nil
}

const withdrawalColumns = `id, to_address, amount, status, tx_hash, notes, failure_reason, created_at, completed_at`

// WithdrawalRepo implements storage.WithdrawalRepository using PostgreSQL.
type WithdrawalRepo struct {
	db *DB
}

// NewWithdrawalRepo creates a new PostgreSQL withdrawal repository.
func NewWithdrawalRepo(db *DB) *WithdrawalRepo {
	return &WithdrawalRepo{db: db}
}

// Create saves a new withdrawal.
func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, to_address, amount, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.ToAddress.String(), w.Amount, string(w.Status), w.Notes, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	var row withdrawalRow
	err := r.db.GetContext(ctx, &row, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return row.toDomain()
}

// MarkCompleted records the transfer hash.
func (r *WithdrawalRepo) MarkCompleted(ctx context.Context, id string, txHash string) error {
	return r.db.execOne(ctx, "complete withdrawal", `
		UPDATE withdrawals SET status = 'completed', tx_hash = $2, completed_at = NOW() WHERE id = $1`,
		id, txHash,
	)
}

// MarkBroadcast stores the hash of an unresolved transfer.
func (r *WithdrawalRepo) MarkBroadcast(ctx context.Context, id string, txHash string) error {
	return r.db.execOne(ctx, "record withdrawal broadcast",
		`UPDATE withdrawals SET tx_hash = $2 WHERE id = $1`, id, txHash)
}

// MarkFailed records the failure reason.
func (r *WithdrawalRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.execOne(ctx, "mark withdrawal failed",
		`UPDATE withdrawals SET status = 'failed', failure_reason = $2 WHERE id = $1`, id, reason)
}

// ListBroadcast retrieves pending withdrawals with a known tx hash, oldest first.
func (r *WithdrawalRepo) ListBroadcast(ctx context.Context) ([]*domain.Withdrawal, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = 'pending' AND tx_hash IS NOT NULL ORDER BY created_at`)
}

// List retrieves the most recent withdrawals.
func (r *WithdrawalRepo) List(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *WithdrawalRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Withdrawal, error) {
	var rows []withdrawalRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	out := make([]*domain.Withdrawal, 0, len(rows))
	for _, row := range rows {
		w, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
