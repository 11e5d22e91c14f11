package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

type walletRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Address         string          `db:"address"`
	EncryptedSecret string          `db:"encrypted_secret"`
	Balance         decimal.Decimal `db:"balance"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		ID:              r.ID,
		UserID:          r.UserID,
		Address:         domain.Address(r.Address),
		EncryptedSecret: r.EncryptedSecret,
		Balance:         r.Balance,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const walletColumns = `id, user_id, address, encrypted_secret, balance, created_at, updated_at`

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Create saves a new wallet.
func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, address, encrypted_secret, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wallet.ID, wallet.UserID, wallet.Address.String(), wallet.EncryptedSecret,
		wallet.Balance, wallet.CreatedAt, wallet.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrWalletExists
	}
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet by id.
func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// GetByUserID retrieves the wallet of a user.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
}

// GetByAddress retrieves a wallet by address.
func (r *WalletRepo) GetByAddress(ctx context.Context, address domain.Address) (*domain.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE LOWER(address) = $1`, address.Key())
}

func (r *WalletRepo) getOne(ctx context.Context, query string, arg any) (*domain.Wallet, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return row.toDomain(), nil
}

// ListAddresses retrieves all deposit addresses.
func (r *WalletRepo) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	var rows []string
	if err := r.db.SelectContext(ctx, &rows, `SELECT address FROM wallets`); err != nil {
		return nil, fmt.Errorf("failed to list wallet addresses: %w", err)
	}

	addrs := make([]domain.Address, 0, len(rows))
	for _, a := range rows {
		addrs = append(addrs, domain.Address(a))
	}
	return addrs, nil
}
