package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
)

const testToken = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

// =============================================================================
// Mock Backend
// =============================================================================

type mockBackend struct {
	mu        sync.Mutex
	height    uint64
	logs      []types.Log
	receipts  map[common.Hash]*types.Receipt
	balances  map[common.Address]*big.Int
	callData  []byte
	gasPrice  *big.Int
	sent      []*types.Transaction
	err       error
	failFirst int
	calls     int
	autoMine  bool
	lastQuery ethereum.FilterQuery
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		receipts: make(map[common.Hash]*types.Receipt),
		balances: make(map[common.Address]*big.Int),
		gasPrice: big.NewInt(20_000_000_000), // 20 gwei
		autoMine: true,
	}
}

func (m *mockBackend) BlockNumber(ctx context.Context) (uint64, error) {
	m.calls++
	if m.calls <= m.failFirst {
		return 0, errors.New("502 bad gateway")
	}
	return m.height, m.err
}

func (m *mockBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.lastQuery = q
	return m.logs, m.err
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (m *mockBackend) BalanceAt(ctx context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	if b, ok := m.balances[a]; ok {
		return b, m.err
	}
	return big.NewInt(0), m.err
}

func (m *mockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return m.callData, m.err
}

func (m *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.gasPrice, m.err
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, a common.Address) (uint64, error) {
	return 7, m.err
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, tx)
	if m.autoMine {
		m.receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(int64(m.height)),
		}
	}
	return nil
}

func newTestGateway(t *testing.T, b *mockBackend) *Gateway {
	t.Helper()
	g, err := NewGateway(b, Config{
		ChainID:        1,
		TokenContract:  testToken,
		TokenDecimals:  18,
		ReceiptTimeout: 200 * time.Millisecond,
		ReceiptPoll:    10 * time.Millisecond,
		Retry:          RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	return g
}

func wordOf(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

// =============================================================================
// Tests
// =============================================================================

func TestGateway_TransferEvents(t *testing.T) {
	b := newMockBackend()
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	fifty := ToBaseUnits(decimal.NewFromInt(50), 18)

	b.logs = []types.Log{
		{
			Topics:      []common.Hash{transferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
			Data:        wordOf(fifty),
			BlockNumber: 1005,
			TxHash:      common.HexToHash("0xaa"),
		},
		// removed by a reorg
		{
			Topics:  []common.Hash{transferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
			Data:    wordOf(fifty),
			Removed: true,
		},
		// approval-like log with the wrong shape
		{Topics: []common.Hash{transferTopic}},
	}

	g := newTestGateway(t, b)
	events, err := g.TransferEvents(context.Background(), 1000, 1010)
	if err != nil {
		t.Fatalf("TransferEvents failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.To.Equal(domain.Address(to.Hex())) || !ev.Amount.Equal(decimal.NewFromInt(50)) || ev.BlockNumber != 1005 {
		t.Errorf("unexpected event %+v", ev)
	}
	if b.lastQuery.FromBlock.Uint64() != 1000 || b.lastQuery.ToBlock.Uint64() != 1010 {
		t.Errorf("unexpected query range %v-%v", b.lastQuery.FromBlock, b.lastQuery.ToBlock)
	}
}

func TestGateway_ReceiptConfirmations(t *testing.T) {
	b := newMockBackend()
	hash := common.HexToHash("0xaa")
	b.receipts[hash] = &types.Receipt{BlockNumber: big.NewInt(1005)}
	g := newTestGateway(t, b)

	tests := []struct {
		height uint64
		want   uint64
	}{
		{1010, 6},
		{1017, 13},
		{1005, 1},
		{1000, 0},
	}
	for _, tt := range tests {
		b.height = tt.height
		got, err := g.ReceiptConfirmations(context.Background(), hash.Hex())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("height %d: expected depth %d, got %d", tt.height, tt.want, got)
		}
	}

	got, err := g.ReceiptConfirmations(context.Background(), "0xbb")
	if err != nil || got != 0 {
		t.Errorf("expected 0 for unknown tx, got %d (%v)", got, err)
	}
}

func TestGateway_TransactionOutcome(t *testing.T) {
	b := newMockBackend()
	ok := common.HexToHash("0xaa")
	reverted := common.HexToHash("0xbb")
	b.receipts[ok] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1005)}
	b.receipts[reverted] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1006)}
	g := newTestGateway(t, b)

	tests := []struct {
		hash string
		want domain.TxOutcome
	}{
		{ok.Hex(), domain.TxOutcome{State: domain.TxSucceeded, BlockNumber: 1005}},
		{reverted.Hex(), domain.TxOutcome{State: domain.TxReverted, BlockNumber: 1006}},
		{"0xcc", domain.TxOutcome{State: domain.TxPending}},
	}
	for _, tt := range tests {
		got, err := g.TransactionOutcome(context.Background(), tt.hash)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.hash, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.hash, tt.want, got)
		}
	}
}

func TestGateway_TransientErrors(t *testing.T) {
	b := newMockBackend()
	b.err = errors.New("connection refused")
	g := newTestGateway(t, b)

	_, err := g.CurrentHeight(context.Background())
	var transient *domain.TransientGatewayError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientGatewayError, got %v", err)
	}
	if transient.Op != "eth_blockNumber" {
		t.Errorf("unexpected op %s", transient.Op)
	}
}

func TestGateway_RetriesTransientReads(t *testing.T) {
	b := newMockBackend()
	b.height = 42
	b.failFirst = 1
	g := newTestGateway(t, b)

	height, err := g.CurrentHeight(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if height != 42 || b.calls != 2 {
		t.Errorf("expected height 42 after 2 calls, got %d after %d", height, b.calls)
	}

	b.calls = 0
	b.failFirst = 5
	if _, err := g.CurrentHeight(context.Background()); err == nil {
		t.Fatal("expected error once attempts are exhausted")
	}
	if b.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", b.calls)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want errorAction
	}{
		{errors.New("connection reset by peer"), actionRetry},
		{errors.New("429 Too Many Requests"), actionRetry},
		{ethereum.NotFound, actionFatal},
		{context.Canceled, actionFatal},
		{errors.New("json-rpc error -32602: invalid argument"), actionFatal},
		{errors.New("execution reverted"), actionFatal},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGateway_Balances(t *testing.T) {
	b := newMockBackend()
	addr := domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	b.balances[common.HexToAddress(addr.String())] = ToBaseUnits(decimal.RequireFromString("0.5"), 18)
	b.callData = wordOf(ToBaseUnits(decimal.NewFromInt(120), 18))
	g := newTestGateway(t, b)

	native, err := g.NativeBalance(context.Background(), addr)
	if err != nil || !native.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("expected native 0.5, got %s (%v)", native, err)
	}

	token, err := g.TokenBalance(context.Background(), addr)
	if err != nil || !token.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected token 120, got %s (%v)", token, err)
	}

	b.callData = nil
	token, err = g.TokenBalance(context.Background(), addr)
	if err != nil || !token.IsZero() {
		t.Errorf("expected zero for empty result, got %s (%v)", token, err)
	}
}

func TestGateway_EstimateTransferGasCost(t *testing.T) {
	b := newMockBackend()
	g := newTestGateway(t, b)

	cost, err := g.EstimateTransferGasCost(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20 gwei * 65000
	if !cost.Equal(decimal.RequireFromString("0.0013")) {
		t.Errorf("expected 0.0013, got %s", cost)
	}
}

func TestGateway_SendTokenTransfer(t *testing.T) {
	b := newMockBackend()
	b.height = 100
	g := newTestGateway(t, b)

	kp, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	hot := domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	hash, err := g.SendTokenTransfer(context.Background(), kp.Secret, hot, decimal.NewFromInt(120))
	if err != nil {
		t.Fatalf("SendTokenTransfer failed: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("expected 1 sent tx, got %d", len(b.sent))
	}

	tx := b.sent[0]
	if hash != tx.Hash().Hex() {
		t.Errorf("expected hash %s, got %s", tx.Hash().Hex(), hash)
	}
	if *tx.To() != common.HexToAddress(testToken) || tx.Gas() != 65000 || tx.Nonce() != 7 {
		t.Errorf("unexpected tx to=%s gas=%d nonce=%d", tx.To().Hex(), tx.Gas(), tx.Nonce())
	}

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(1)), tx)
	if err != nil || !kp.Address.Equal(domain.Address(sender.Hex())) {
		t.Errorf("expected sender %s, got %s (%v)", kp.Address, sender.Hex(), err)
	}

	args, err := g.abi.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack transfer: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(hot.String()) {
		t.Errorf("unexpected recipient %v", args[0])
	}
	if args[1].(*big.Int).Cmp(ToBaseUnits(decimal.NewFromInt(120), 18)) != 0 {
		t.Errorf("unexpected amount %v", args[1])
	}
}

func TestGateway_SendNativeTransfer_NotMined(t *testing.T) {
	b := newMockBackend()
	b.autoMine = false
	g := newTestGateway(t, b)

	kp, _ := GenerateKey()
	_, err := g.SendNativeTransfer(context.Background(), kp.Secret, kp.Address, decimal.RequireFromString("0.01"))

	var transient *domain.TransientGatewayError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientGatewayError on receipt timeout, got %v", err)
	}
	if b.sent[0].Value().Cmp(ToBaseUnits(decimal.RequireFromString("0.01"), 18)) != 0 {
		t.Errorf("unexpected value %s", b.sent[0].Value())
	}
}

func TestUnits(t *testing.T) {
	amt := decimal.RequireFromString("1.234567")
	base := ToBaseUnits(amt, 6)
	if base.Int64() != 1234567 {
		t.Errorf("expected 1234567, got %s", base)
	}
	if !FromBaseUnits(base, 6).Equal(amt) {
		t.Errorf("round trip mismatch: %s", FromBaseUnits(base, 6))
	}
	// sub-unit precision is truncated
	if ToBaseUnits(decimal.RequireFromString("0.0000009"), 6).Sign() != 0 {
		t.Error("expected truncation to zero")
	}
	if !FromBaseUnits(nil, 18).IsZero() {
		t.Error("expected zero for nil")
	}
}

func TestKeys(t *testing.T) {
	kp, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	addr, err := AddressFromSecret(kp.Secret)
	if err != nil {
		t.Fatalf("AddressFromSecret failed: %v", err)
	}
	if addr != kp.Address {
		t.Errorf("expected %s, got %s", kp.Address, addr)
	}
	if _, err := AddressFromSecret("not-a-key"); err == nil {
		t.Error("expected error for invalid key")
	}
}
