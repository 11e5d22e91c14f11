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

type depositRow struct {
	ID            string          `db:"id"`
	TxHash        string          `db:"tx_hash"`
	WalletID      string          `db:"wallet_id"`
	Amount        decimal.Decimal `db:"amount"`
	BlockNumber   int64           `db:"block_number"`
	Confirmations int64           `db:"confirmations"`
	Status        string          `db:"status"`
	Swept         bool            `db:"swept"`
	SweepTxHash   sql.NullString  `db:"sweep_tx_hash"`
	PendingSweep  sql.NullString  `db:"pending_sweep_tx_hash"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r depositRow) toDomain() (*domain.DepositRecord, error) {
	status, err := domain.ParseDepositStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &domain.DepositRecord{
		ID:                 r.ID,
		TxHash:             r.TxHash,
		WalletID:           r.WalletID,
		Amount:             r.Amount,
		BlockNumber:        uint64(r.BlockNumber),
		Confirmations:      uint64(r.Confirmations),
		Status:             status,
		Swept:              r.Swept,
		SweepTxHash:        r.SweepTxHash.String,
		PendingSweepTxHash: r.PendingSweep.String,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}

const depositColumns = `id, tx_hash, wallet_id, amount, block_number, confirmations, status, swept, sweep_tx_hash, pending_sweep_tx_hash, created_at, updated_at`

// DepositRepo implements storage.DepositRepository using PostgreSQL.
type DepositRepo struct {
	db *DB
}

// NewDepositRepo creates a new PostgreSQL deposit repository.
func NewDepositRepo(db *DB) *DepositRepo {
	return &DepositRepo{db: db}
}

// Insert saves a new deposit. The tx_hash unique constraint makes this idempotent.
func (r *DepositRepo) Insert(ctx context.Context, d *domain.DepositRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deposits (id, tx_hash, wallet_id, amount, block_number, confirmations, status, swept, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.TxHash, d.WalletID, d.Amount, int64(d.BlockNumber), int64(d.Confirmations),
		string(d.Status), d.Swept, d.CreatedAt, d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateDeposit
	}
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	return nil
}

// GetByID retrieves a deposit by id.
func (r *DepositRepo) GetByID(ctx context.Context, id string) (*domain.DepositRecord, error) {
	return r.getOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id)
}

// GetByTxHash retrieves a deposit by tx hash.
func (r *DepositRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.DepositRecord, error) {
	return r.getOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE tx_hash = $1`, txHash)
}

func (r *DepositRepo) getOne(ctx context.Context, query string, arg any) (*domain.DepositRecord, error) {
	var row depositRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return row.toDomain()
}

// UpdateConfirmations overwrites the confirmation count.
func (r *DepositRepo) UpdateConfirmations(ctx context.Context, id string, confirmations uint64) error {
	return r.db.execOne(ctx, "update confirmations",
		`UPDATE deposits SET confirmations = $2, updated_at = NOW() WHERE id = $1`,
		id, int64(confirmations),
	)
}

// ListPending retrieves deposits awaiting confirmation.
func (r *DepositRepo) ListPending(ctx context.Context) ([]*domain.DepositRecord, error) {
	return r.list(ctx, `SELECT `+depositColumns+` FROM deposits WHERE status = 'pending' ORDER BY created_at`)
}

// ListUnsweptConfirmed retrieves confirmed, unswept deposits, oldest first.
func (r *DepositRepo) ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error) {
	return r.list(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE status = 'confirmed' AND NOT swept ORDER BY created_at`)
}

// ListByWallet retrieves the most recent deposits of a wallet.
func (r *DepositRepo) ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.DepositRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, walletID, limit)
}

// LatestSweepTxHash returns the hash of the most recent sweep of a wallet.
func (r *DepositRepo) LatestSweepTxHash(ctx context.Context, walletID string) (string, error) {
	var hash string
	err := r.db.GetContext(ctx, &hash, `
		SELECT sweep_tx_hash FROM deposits
		WHERE wallet_id = $1 AND swept AND sweep_tx_hash IS NOT NULL
		ORDER BY updated_at DESC LIMIT 1`, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest sweep: %w", err)
	}
	return hash, nil
}

func (r *DepositRepo) list(ctx context.Context, query string, args ...any) ([]*domain.DepositRecord, error) {
	var rows []depositRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}

	deposits := make([]*domain.DepositRecord, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, nil
}
