package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/ledger"
)

// TestLive runs against a real database when DATABASE_URL is set.
func TestLive(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	wallets := NewWalletRepo(db)
	deposits := NewDepositRepo(db)
	wallet := liveWallet(t, wallets)

	t.Run("concurrent confirmation credits once", func(t *testing.T) {
		d := liveDeposit(t, deposits, wallet.ID, "12.5")
		l := ledger.New(wallets, deposits, db, nil)

		var credited atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.CommitConfirmation(ctx, d.ID)
				if err != nil {
					t.Errorf("commit: %v", err)
				}
				if ok {
					credited.Add(1)
				}
			}()
		}
		wg.Wait()

		if n := credited.Load(); n != 1 {
			t.Fatalf("expected one credit, got %d", n)
		}
		got, err := wallets.GetByID(ctx, wallet.ID)
		if err != nil || !got.Balance.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("expected balance 12.5, got %v (%v)", got, err)
		}
	})

	t.Run("pending deposit cannot be swept", func(t *testing.T) {
		d := liveDeposit(t, deposits, wallet.ID, "1")
		uow, err := db.Begin(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer uow.Rollback()
		if err := uow.MarkSwept(ctx, d.ID, "0xnope"); err == nil {
			t.Error("expected check constraint violation")
		}
	})

	t.Run("latest sweep wins", func(t *testing.T) {
		w := liveWallet(t, wallets)
		for i, hash := range []string{"0xfirst", "0xsecond"} {
			d := liveDeposit(t, deposits, w.ID, "1")
			uow, _ := db.Begin(ctx)
			if err := uow.ConfirmDeposit(ctx, d.ID); err != nil {
				t.Fatalf("confirm %d: %v", i, err)
			}
			if err := uow.MarkSwept(ctx, d.ID, hash); err != nil {
				t.Fatalf("mark swept %d: %v", i, err)
			}
			if err := uow.Commit(); err != nil {
				t.Fatalf("commit %d: %v", i, err)
			}
		}
		if got, err := deposits.LatestSweepTxHash(ctx, w.ID); err != nil || got != "0xsecond" {
			t.Errorf("expected 0xsecond, got %q (%v)", got, err)
		}
	})

	t.Run("pending sweep round trip", func(t *testing.T) {
		d := liveDeposit(t, deposits, wallet.ID, "1")
		uow, _ := db.Begin(ctx)
		if err := uow.RecordPendingSweep(ctx, d.ID, "0xinflight"); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := uow.Commit(); err != nil {
			t.Fatal(err)
		}
		got, err := deposits.GetByID(ctx, d.ID)
		if err != nil || got.PendingSweepTxHash != "0xinflight" || got.Swept {
			t.Errorf("unexpected deposit %+v (%v)", got, err)
		}
	})

	t.Run("missing rows report not found", func(t *testing.T) {
		missing := uuid.NewString()
		if err := deposits.UpdateConfirmations(ctx, missing, 3); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("update confirmations: expected ErrNotFound, got %v", err)
		}
		if err := NewWithdrawalRepo(db).MarkFailed(ctx, missing, "x"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("mark failed: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("broadcast withdrawals", func(t *testing.T) {
		repo := NewWithdrawalRepo(db)
		w := &domain.Withdrawal{
			ID:        uuid.NewString(),
			ToAddress: liveAddress(),
			Amount:    decimal.NewFromInt(4),
			Status:    domain.WithdrawalStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Create(ctx, w); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.MarkBroadcast(ctx, w.ID, "0xout"); err != nil {
			t.Fatalf("broadcast: %v", err)
		}
		if !listed(t, repo, w.ID) {
			t.Fatal("expected withdrawal among broadcast")
		}
		if err := repo.MarkCompleted(ctx, w.ID, "0xout"); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if listed(t, repo, w.ID) {
			t.Error("completed withdrawal still listed as broadcast")
		}
	})
}

func liveAddress() domain.Address {
	return domain.Address("0x" + strings.ReplaceAll(uuid.NewString(), "-", "") + "00000000")
}

func liveWallet(t *testing.T, repo *WalletRepo) *domain.Wallet {
	t.Helper()
	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:              uuid.NewString(),
		UserID:          "live-" + uuid.NewString(),
		Address:         liveAddress(),
		EncryptedSecret: "enc:v1:00",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.Create(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return w
}

func liveDeposit(t *testing.T, repo *DepositRepo, walletID, amount string) *domain.DepositRecord {
	t.Helper()
	now := time.Now().UTC()
	d := &domain.DepositRecord{
		ID:          uuid.NewString(),
		TxHash:      "0x" + uuid.NewString(),
		WalletID:    walletID,
		Amount:      decimal.RequireFromString(amount),
		BlockNumber: 10,
		Status:      domain.DepositStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Insert(context.Background(), d); err != nil {
		t.Fatalf("insert deposit: %v", err)
	}
	return d
}

func listed(t *testing.T, repo *WithdrawalRepo, id string) bool {
	t.Helper()
	list, err := repo.ListBroadcast(context.Background())
	if err != nil {
		t.Fatalf("list broadcast: %v", err)
	}
	for _, w := range list {
		if w.ID == id {
			return true
		}
	}
	return false
}
