package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

type sweepEntry struct {
	walletID string
	txHash   string
}

// MemoryStorage is an in-process store. Deposit rows can be locked by a
// UnitOfWork the same way SELECT ... FOR UPDATE locks them in postgres.
type MemoryStorage struct {
	wallets      map[string]*domain.Wallet
	deposits     map[string]*domain.DepositRecord
	depositOrder []string
	txHashes     map[string]string // tx hash -> deposit id
	sweeps       []sweepEntry
	cursors      map[string]*domain.Cursor
	hot          *domain.HotWallet
	withdrawals  map[string]*domain.Withdrawal
	withdrawOrd  []string
	mu           sync.RWMutex

	lockMu   sync.Mutex
	rowLocks map[string]chan struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		wallets:     make(map[string]*domain.Wallet),
		deposits:    make(map[string]*domain.DepositRecord),
		txHashes:    make(map[string]string),
		cursors:     make(map[string]*domain.Cursor),
		withdrawals: make(map[string]*domain.Withdrawal),
		rowLocks:    make(map[string]chan struct{}),
	}
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStorage) rowLock(id string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, w := range r.store.wallets {
		if w.UserID == wallet.UserID {
			return storage.ErrWalletExists
		}
	}
	w := *wallet
	r.store.wallets[w.ID] = &w
	return nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if w, ok := r.store.wallets[id]; ok {
		c := *w
		return &c, nil
	}
	return nil, nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.wallets {
		if w.UserID == userID {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address domain.Address) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.wallets {
		if w.Address.Equal(address) {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (r *WalletRepo) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	addrs := make([]domain.Address, 0, len(r.store.wallets))
	for _, w := range r.store.wallets {
		addrs = append(addrs, w.Address)
	}
	return addrs, nil
}

// -----------------------------------------------------------------------------
// Deposit Repository
// -----------------------------------------------------------------------------

type DepositRepo struct {
	store *MemoryStorage
}

func NewDepositRepo(store *MemoryStorage) *DepositRepo {
	return &DepositRepo{store: store}
}

func (r *DepositRepo) Insert(ctx context.Context, deposit *domain.DepositRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.txHashes[deposit.TxHash]; ok {
		return domain.ErrDuplicateDeposit
	}
	d := *deposit
	r.store.deposits[d.ID] = &d
	r.store.txHashes[d.TxHash] = d.ID
	r.store.depositOrder = append(r.store.depositOrder, d.ID)
	return nil
}

func (r *DepositRepo) GetByID(ctx context.Context, id string) (*domain.DepositRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if d, ok := r.store.deposits[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (r *DepositRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.DepositRecord, error) {
	r.store.mu.RLock()
	id, ok := r.store.txHashes[txHash]
	r.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *DepositRepo) UpdateConfirmations(ctx context.Context, id string, confirmations uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.deposits[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Confirmations = confirmations
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *DepositRepo) list(match func(*domain.DepositRecord) bool) []*domain.DepositRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.DepositRecord
	for _, id := range r.store.depositOrder {
		d := r.store.deposits[id]
		if match(d) {
			c := *d
			out = append(out, &c)
		}
	}
	return out
}

func (r *DepositRepo) ListPending(ctx context.Context) ([]*domain.DepositRecord, error) {
	return r.list(func(d *domain.DepositRecord) bool {
		return d.Status == domain.DepositStatusPending
	}), nil
}

func (r *DepositRepo) ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error) {
	return r.list(func(d *domain.DepositRecord) bool {
		return d.Sweepable()
	}), nil
}

func (r *DepositRepo) ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.DepositRecord, error) {
	all := r.list(func(d *domain.DepositRecord) bool { return d.WalletID == walletID })
	out := make([]*domain.DepositRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (r *DepositRepo) LatestSweepTxHash(ctx context.Context, walletID string) (string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for i := len(r.store.sweeps) - 1; i >= 0; i-- {
		if r.store.sweeps[i].walletID == walletID {
			return r.store.sweeps[i].txHash, nil
		}
	}
	return "", nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if c, ok := r.store.cursors[name]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cursor
	r.store.cursors[c.Name] = &c
	return nil
}

// -----------------------------------------------------------------------------
// Hot Wallet Repository
// -----------------------------------------------------------------------------

type HotWalletRepo struct {
	store *MemoryStorage
}

func NewHotWalletRepo(store *MemoryStorage) *HotWalletRepo {
	return &HotWalletRepo{store: store}
}

func (r *HotWalletRepo) Get(ctx context.Context) (*domain.HotWallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if r.store.hot == nil {
		return nil, nil
	}
	c := *r.store.hot
	return &c, nil
}

func (r *HotWalletRepo) Create(ctx context.Context, hot *domain.HotWallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.hot != nil {
		return storage.ErrHotWalletExists
	}
	c := *hot
	r.store.hot = &c
	return nil
}

// -----------------------------------------------------------------------------
// Withdrawal Repository
// -----------------------------------------------------------------------------

type WithdrawalRepo struct {
	store *MemoryStorage
}

func NewWithdrawalRepo(store *MemoryStorage) *WithdrawalRepo {
	return &WithdrawalRepo{store: store}
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *w
	r.store.withdrawals[c.ID] = &c
	r.store.withdrawOrd = append(r.store.withdrawOrd, c.ID)
	return nil
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if w, ok := r.store.withdrawals[id]; ok {
		c := *w
		return &c, nil
	}
	return nil, nil
}

func (r *WithdrawalRepo) MarkCompleted(ctx context.Context, id string, txHash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.withdrawals[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	w.Status = domain.WithdrawalStatusCompleted
	w.TxHash = txHash
	w.CompletedAt = &now
	return nil
}

func (r *WithdrawalRepo) MarkBroadcast(ctx context.Context, id string, txHash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.withdrawals[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.TxHash = txHash
	return nil
}

func (r *WithdrawalRepo) ListBroadcast(ctx context.Context) ([]*domain.Withdrawal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Withdrawal
	for _, id := range r.store.withdrawOrd {
		w := r.store.withdrawals[id]
		if w.Status == domain.WithdrawalStatusPending && w.TxHash != "" {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *WithdrawalRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.withdrawals[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.Status = domain.WithdrawalStatusFailed
	w.FailureReason = reason
	return nil
}

func (r *WithdrawalRepo) List(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Withdrawal
	for i := len(r.store.withdrawOrd) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		c := *r.store.withdrawals[r.store.withdrawOrd[i]]
		out = append(out, &c)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Unit of Work
// -----------------------------------------------------------------------------

// UnitOfWork buffers writes and applies them atomically on Commit. Deposit
// rows read through LockDeposit stay locked until Commit or Rollback.
type UnitOfWork struct {
	store *MemoryStorage
	held  map[string]chan struct{}
	ops   []func()
	done  bool
}

// Begin starts a unit of work.
func (s *MemoryStorage) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &UnitOfWork{store: s, held: make(map[string]chan struct{})}, nil
}

func (u *UnitOfWork) LockDeposit(ctx context.Context, id string) (*domain.DepositRecord, error) {
	if u.done {
		return nil, storage.ErrTxDone
	}
	if _, ok := u.held[id]; !ok {
		l := u.store.rowLock(id)
		select {
		case l <- struct{}{}:
			u.held[id] = l
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	d, ok := u.store.deposits[id]
	if !ok {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (u *UnitOfWork) ConfirmDeposit(ctx context.Context, id string) error {
	if u.done {
		return storage.ErrTxDone
	}
	if !u.depositExists(id) {
		return domain.ErrNotFound
	}
	u.ops = append(u.ops, func() {
		d := u.store.deposits[id]
		d.Status = domain.DepositStatusConfirmed
		d.UpdatedAt = time.Now().UTC()
	})
	return nil
}

func (u *UnitOfWork) CreditWallet(ctx context.Context, walletID string, amount decimal.Decimal) error {
	if u.done {
		return storage.ErrTxDone
	}
	u.store.mu.RLock()
	_, ok := u.store.wallets[walletID]
	u.store.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	u.ops = append(u.ops, func() {
		w := u.store.wallets[walletID]
		w.Balance = w.Balance.Add(amount)
		w.UpdatedAt = time.Now().UTC()
	})
	return nil
}

func (u *UnitOfWork) MarkSwept(ctx context.Context, id string, sweepTxHash string) error {
	if u.done {
		return storage.ErrTxDone
	}
	if !u.depositExists(id) {
		return domain.ErrNotFound
	}
	u.ops = append(u.ops, func() {
		d := u.store.deposits[id]
		d.Swept = true
		d.SweepTxHash = sweepTxHash
		d.UpdatedAt = time.Now().UTC()
		u.store.sweeps = append(u.store.sweeps, sweepEntry{walletID: d.WalletID, txHash: sweepTxHash})
	})
	return nil
}

func (u *UnitOfWork) RecordPendingSweep(ctx context.Context, id string, sweepTxHash string) error {
	if u.done {
		return storage.ErrTxDone
	}
	if !u.depositExists(id) {
		return domain.ErrNotFound
	}
	u.ops = append(u.ops, func() {
		d := u.store.deposits[id]
		d.PendingSweepTxHash = sweepTxHash
		d.UpdatedAt = time.Now().UTC()
	})
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.done {
		return storage.ErrTxDone
	}
	u.store.mu.Lock()
	for _, op := range u.ops {
		op()
	}
	u.store.mu.Unlock()
	u.finish()
	return nil
}

// Rollback discards buffered writes. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *UnitOfWork) finish() {
	u.done = true
	u.ops = nil
	for _, l := range u.held {
		<-l
	}
	clear(u.held)
}

func (u *UnitOfWork) depositExists(id string) bool {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	_, ok := u.store.deposits[id]
	return ok
}
