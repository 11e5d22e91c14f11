package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/infra/storage/memory"
)

const depositAddr = domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

func setup(t *testing.T) (*Ledger, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	err := memory.NewWalletRepo(store).Create(context.Background(), &domain.Wallet{
		ID: "w1", UserID: "u1", Address: depositAddr,
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	l := New(memory.NewWalletRepo(store), memory.NewDepositRepo(store), store, nil)
	return l, store
}

func balance(t *testing.T, store *memory.MemoryStorage) decimal.Decimal {
	t.Helper()
	w, err := memory.NewWalletRepo(store).GetByID(context.Background(), "w1")
	if err != nil || w == nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.Balance
}

func TestRecordDeposit_Idempotent(t *testing.T) {
	l, store := setup(t)
	ctx := context.Background()

	first, err := l.RecordDeposit(ctx, "0xaa", depositAddr, decimal.NewFromInt(50), 1005)
	if err != nil || first == nil {
		t.Fatalf("expected a new record, got %v (%v)", first, err)
	}
	if first.Status != domain.DepositStatusPending || first.Confirmations != 0 || first.Swept {
		t.Errorf("unexpected initial state %+v", first)
	}

	again, err := l.RecordDeposit(ctx, "0xaa", depositAddr, decimal.NewFromInt(50), 1005)
	if err != nil || again != nil {
		t.Fatalf("expected duplicate to be swallowed, got %v (%v)", again, err)
	}

	pending, _ := memory.NewDepositRepo(store).ListPending(ctx)
	if len(pending) != 1 {
		t.Errorf("expected exactly one record, got %d", len(pending))
	}
}

func TestRecordDeposit_CaseInsensitiveAddress(t *testing.T) {
	l, _ := setup(t)
	d, err := l.RecordDeposit(context.Background(), "0xbb",
		domain.Address("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"), decimal.NewFromInt(1), 1)
	if err != nil || d == nil || d.WalletID != "w1" {
		t.Fatalf("expected record for w1, got %+v (%v)", d, err)
	}
}

func TestRecordDeposit_UnknownAddress(t *testing.T) {
	l, _ := setup(t)
	d, err := l.RecordDeposit(context.Background(), "0xcc",
		domain.Address("0x0000000000000000000000000000000000000001"), decimal.NewFromInt(1), 1)
	if err != nil || d != nil {
		t.Fatalf("expected nil, nil for unknown address, got %v (%v)", d, err)
	}
}

func TestCommitConfirmation_ExactlyOnce(t *testing.T) {
	l, store := setup(t)
	ctx := context.Background()
	d, _ := l.RecordDeposit(ctx, "0xaa", depositAddr, decimal.NewFromInt(50), 1005)

	var credited int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.CommitConfirmation(ctx, d.ID)
			if err != nil {
				t.Errorf("CommitConfirmation failed: %v", err)
			}
			if ok {
				atomic.AddInt32(&credited, 1)
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Errorf("expected exactly one credit, got %d", credited)
	}
	if !balance(t, store).Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance 50, got %s", balance(t, store))
	}
}

func TestCommitConfirmation_Missing(t *testing.T) {
	l, _ := setup(t)
	ok, err := l.CommitConfirmation(context.Background(), "missing")
	if err != nil || ok {
		t.Errorf("expected no-op for missing deposit, got %v (%v)", ok, err)
	}
}

// failingTransactor wraps a store so CreditWallet fails.
type failingTransactor struct {
	inner storage.Transactor
}

type failingUnit struct {
	storage.UnitOfWork
}

func (f *failingTransactor) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	uow, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingUnit{uow}, nil
}

func (f *failingUnit) CreditWallet(ctx context.Context, walletID string, amount decimal.Decimal) error {
	return errors.New("disk full")
}

func TestCommitConfirmation_RollsBackOnFailure(t *testing.T) {
	_, store := setup(t)
	ctx := context.Background()
	l := New(memory.NewWalletRepo(store), memory.NewDepositRepo(store), &failingTransactor{store}, nil)
	d, _ := l.RecordDeposit(ctx, "0xaa", depositAddr, decimal.NewFromInt(50), 1005)

	if _, err := l.CommitConfirmation(ctx, d.ID); err == nil {
		t.Fatal("expected error")
	}

	got, _ := memory.NewDepositRepo(store).GetByID(ctx, d.ID)
	if got.Status != domain.DepositStatusPending {
		t.Errorf("expected deposit to stay pending, got %s", got.Status)
	}
	if !balance(t, store).IsZero() {
		t.Errorf("expected no credit, got %s", balance(t, store))
	}

	// The row lock was released by the rollback
	ok, err := New(memory.NewWalletRepo(store), memory.NewDepositRepo(store), store, nil).CommitConfirmation(ctx, d.ID)
	if err != nil || !ok {
		t.Errorf("expected a later commit to succeed, got %v (%v)", ok, err)
	}
}
