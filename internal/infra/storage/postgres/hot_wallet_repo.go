package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

const (
	keyHotWalletAddress = "hot_wallet_address"
	keyHotWalletSecret  = "hot_wallet_encrypted_key"
)

// HotWalletRepo stores the hot wallet as two system_config rows.
type HotWalletRepo struct {
	db *DB
}

// NewHotWalletRepo creates a new PostgreSQL hot wallet repository.
func NewHotWalletRepo(db *DB) *HotWalletRepo {
	return &HotWalletRepo{db: db}
}

// Get retrieves the hot wallet, nil when not configured.
func (r *HotWalletRepo) Get(ctx context.Context) (*domain.HotWallet, error) {
	var rows []struct {
		Key       string    `db:"key"`
		Value     string    `db:"value"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT key, value, created_at FROM system_config WHERE key IN ($1, $2)`,
		keyHotWalletAddress, keyHotWalletSecret,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get hot wallet: %w", err)
	}

	hot := &domain.HotWallet{}
	for _, row := range rows {
		switch row.Key {
		case keyHotWalletAddress:
			hot.Address = domain.Address(row.Value)
			hot.CreatedAt = row.CreatedAt
		case keyHotWalletSecret:
			hot.EncryptedSecret = row.Value
		}
	}
	if hot.Address == "" || hot.EncryptedSecret == "" {
		return nil, nil
	}
	return hot, nil
}

// Create stores the hot wallet once.
func (r *HotWalletRepo) Create(ctx context.Context, hot *domain.HotWallet) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kv := range [][2]string{
		{keyHotWalletAddress, hot.Address.String()},
		{keyHotWalletSecret, hot.EncryptedSecret},
	} {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO system_config (key, value, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
			kv[0], kv[1], hot.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save hot wallet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrHotWalletExists
		}
	}

	return tx.Commit()
}
