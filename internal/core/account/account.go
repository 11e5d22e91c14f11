// Package account provisions custodial deposit wallets and the hot wallet.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/chain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// KeyGenerator creates a fresh account keypair.
type KeyGenerator func() (chain.KeyPair, error)

// Encrypter seals wallet secrets before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// WalletView is a wallet without its secret.
type WalletView struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Address   domain.Address `json:"address"`
	Balance   string         `json:"balance"`
	CreatedAt time.Time      `json:"created_at"`
}

func viewOf(w *domain.Wallet) *WalletView {
	return &WalletView{
		ID:        w.ID,
		UserID:    w.UserID,
		Address:   w.Address,
		Balance:   w.Balance.String(),
		CreatedAt: w.CreatedAt,
	}
}

// Service creates and looks up wallets.
type Service struct {
	wallets storage.WalletRepository
	hot     storage.HotWalletRepository
	vault   Encrypter
	keygen  KeyGenerator
	log     *slog.Logger
}

// NewService creates an account service.
func NewService(
	wallets storage.WalletRepository,
	hot storage.HotWalletRepository,
	vault Encrypter,
	keygen KeyGenerator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		wallets: wallets,
		hot:     hot,
		vault:   vault,
		keygen:  keygen,
		log:     logger.With("component", "account"),
	}
}

// EnsureWallet returns the wallet of userID, creating it on first access.
// Concurrent callers for the same user all get the same wallet.
func (s *Service) EnsureWallet(ctx context.Context, userID string) (*WalletView, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	existing, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if existing != nil {
		return viewOf(existing), nil
	}

	kp, sealed, err := s.newKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:              uuid.NewString(),
		UserID:          userID,
		Address:         kp.Address,
		EncryptedSecret: sealed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.wallets.Create(ctx, w)
	if errors.Is(err, storage.ErrWalletExists) {
		// lost the race to another creator
		existing, err = s.wallets.GetByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get wallet: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("wallet of user %s: %w", userID, domain.ErrNotFound)
		}
		return viewOf(existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	s.log.Info("wallet created", "user", userID, "address", w.Address)
	return viewOf(w), nil
}

// WalletByUser returns the wallet of userID, or nil.
func (s *Service) WalletByUser(ctx context.Context, userID string) (*WalletView, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if w == nil {
		return nil, nil
	}
	return viewOf(w), nil
}

// InitHotWallet creates the hot wallet. If one is already configured it is
// returned unchanged and created is false.
func (s *Service) InitHotWallet(ctx context.Context) (addr domain.Address, created bool, err error) {
	existing, err := s.hot.Get(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to get hot wallet: %w", err)
	}
	if existing != nil {
		return existing.Address, false, nil
	}

	kp, sealed, err := s.newKey()
	if err != nil {
		return "", false, err
	}

	err = s.hot.Create(ctx, &domain.HotWallet{
		Address:         kp.Address,
		EncryptedSecret: sealed,
		CreatedAt:       time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrHotWalletExists) {
		existing, err = s.hot.Get(ctx)
		if err != nil || existing == nil {
			return "", false, fmt.Errorf("failed to get hot wallet: %w", err)
		}
		return existing.Address, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to create hot wallet: %w", err)
	}

	s.log.Info("hot wallet created", "address", kp.Address)
	return kp.Address, true, nil
}

func (s *Service) newKey() (chain.KeyPair, string, error) {
	kp, err := s.keygen()
	if err != nil {
		return chain.KeyPair{}, "", fmt.Errorf("failed to generate key: %w", err)
	}
	sealed, err := s.vault.Encrypt(kp.Secret)
	if err != nil {
		return chain.KeyPair{}, "", fmt.Errorf("failed to encrypt key: %w", err)
	}
	return kp, sealed, nil
}
