package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
)

var (
	// ErrWalletExists is returned when a user already owns a wallet.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrHotWalletExists is returned when the hot wallet is already configured.
	ErrHotWalletExists = errors.New("hot wallet already exists")

	// ErrTxDone is returned when a unit of work is used after Commit or Rollback.
	ErrTxDone = errors.New("unit of work already completed")
)

// WalletRepository handles deposit wallet storage
type WalletRepository interface {
	// Create stores a new wallet. Returns ErrWalletExists if the user already has one.
	Create(ctx context.Context, wallet *domain.Wallet) error

	// GetByID retrieves a wallet by id (nil if missing)
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// GetByUserID retrieves the wallet of a user (nil if missing)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// GetByAddress retrieves a wallet by address, case-insensitively (nil if missing)
	GetByAddress(ctx context.Context, address domain.Address) (*domain.Wallet, error)

	// ListAddresses returns every deposit address
	ListAddresses(ctx context.Context) ([]domain.Address, error)
}

// DepositRepository handles deposit record storage
type DepositRepository interface {
	// Insert stores a new pending deposit. Returns domain.ErrDuplicateDeposit
	// if a deposit with the same tx hash exists.
	Insert(ctx context.Context, deposit *domain.DepositRecord) error

	// GetByID retrieves a deposit (nil if missing)
	GetByID(ctx context.Context, id string) (*domain.DepositRecord, error)

	// GetByTxHash retrieves a deposit by tx hash (nil if missing)
	GetByTxHash(ctx context.Context, txHash string) (*domain.DepositRecord, error)

	// UpdateConfirmations overwrites the confirmation count. Returns
	// domain.ErrNotFound for an unknown id.
	UpdateConfirmations(ctx context.Context, id string, confirmations uint64) error

	// ListPending returns deposits awaiting confirmation
	ListPending(ctx context.Context) ([]*domain.DepositRecord, error)

	// ListUnsweptConfirmed returns confirmed, unswept deposits, oldest first
	ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error)

	// ListByWallet returns the most recent deposits of a wallet
	ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.DepositRecord, error)

	// LatestSweepTxHash returns the hash of the most recent sweep of a wallet ("" if none)
	LatestSweepTxHash(ctx context.Context, walletID string) (string, error)
}

// CursorRepository handles scan watermark storage
type CursorRepository interface {
	// Get retrieves a cursor by name (nil if missing)
	Get(ctx context.Context, name string) (*domain.Cursor, error)

	// Save creates or overwrites a cursor
	Save(ctx context.Context, cursor *domain.Cursor) error
}

// HotWalletRepository handles the hot wallet singleton
type HotWalletRepository interface {
	// Get retrieves the hot wallet (nil if not configured)
	Get(ctx context.Context) (*domain.HotWallet, error)

	// Create stores the hot wallet. Returns ErrHotWalletExists if one is configured.
	Create(ctx context.Context, hot *domain.HotWallet) error
}

// WithdrawalRepository handles hot wallet withdrawal records
type WithdrawalRepository interface {
	// Create stores a new pending withdrawal
	Create(ctx context.Context, w *domain.Withdrawal) error

	// GetByID retrieves a withdrawal (nil if missing)
	GetByID(ctx context.Context, id string) (*domain.Withdrawal, error)

	// MarkCompleted records the transfer hash and completes the withdrawal
	MarkCompleted(ctx context.Context, id string, txHash string) error

	// MarkBroadcast records the hash of a transfer whose outcome is not yet
	// known. The withdrawal stays pending.
	MarkBroadcast(ctx context.Context, id string, txHash string) error

	// MarkFailed records the failure reason
	MarkFailed(ctx context.Context, id string, reason string) error

	// ListBroadcast returns pending withdrawals that carry a tx hash
	ListBroadcast(ctx context.Context) ([]*domain.Withdrawal, error)

	// List returns the most recent withdrawals
	List(ctx context.Context, limit int) ([]*domain.Withdrawal, error)
}

// UnitOfWork is a single atomic transaction holding row locks until it ends.
type UnitOfWork interface {
	// LockDeposit takes an exclusive lock on the deposit row and returns it
	// (nil if missing). The lock is held until Commit or Rollback.
	LockDeposit(ctx context.Context, id string) (*domain.DepositRecord, error)

	// ConfirmDeposit sets the deposit status to confirmed
	ConfirmDeposit(ctx context.Context, id string) error

	// CreditWallet increases the wallet balance by amount
	CreditWallet(ctx context.Context, walletID string, amount decimal.Decimal) error

	// MarkSwept flags the deposit as swept by sweepTxHash
	MarkSwept(ctx context.Context, id string, sweepTxHash string) error

	// RecordPendingSweep stores a broadcast sweep whose outcome is unknown.
	// The deposit stays unswept.
	RecordPendingSweep(ctx context.Context, id string, sweepTxHash string) error

	// Commit applies every change
	Commit() error

	// Rollback discards every change. Safe to call after Commit.
	Rollback() error
}

// Transactor starts units of work.
type Transactor interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
