package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockCursorRepo struct {
	mu      sync.RWMutex
	cursors map[string]*domain.Cursor
	saveErr error
	saves   int
}

func newMockCursorRepo() *mockCursorRepo {
	return &mockCursorRepo{
		cursors: make(map[string]*domain.Cursor),
	}
}

func (r *mockCursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cursor, ok := r.cursors[name]
	if !ok {
		return nil, nil
	}
	c := *cursor
	return &c, nil
}

func (r *mockCursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	c := *cursor
	r.cursors[cursor.Name] = &c
	r.saves++
	return nil
}

// =============================================================================
// Load Tests
// =============================================================================

func TestManagerLoad_ColdStart(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo, DefaultName)

	last, err := m.Load(context.Background(), 1022, 12)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if last != 1010 {
		t.Errorf("expected cold start watermark 1010, got %d", last)
	}
	if repo.saves != 0 {
		t.Errorf("cold start should not persist, got %d saves", repo.saves)
	}
}

func TestManagerLoad_Persisted(t *testing.T) {
	repo := newMockCursorRepo()
	repo.cursors[DefaultName] = &domain.Cursor{Name: DefaultName, LastProcessedBlock: 999}
	m := NewManager(repo, DefaultName)

	last, err := m.Load(context.Background(), 5000, 12)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if last != 999 {
		t.Errorf("expected persisted watermark 999, got %d", last)
	}

	// Second load uses the in-memory value
	repo.cursors[DefaultName].LastProcessedBlock = 1
	last, _ = m.Load(context.Background(), 5000, 12)
	if last != 999 {
		t.Errorf("expected cached watermark 999, got %d", last)
	}
}

func TestColdStart(t *testing.T) {
	tests := []struct {
		height, conf, want uint64
	}{
		{1022, 12, 1010},
		{12, 12, 0},
		{5, 12, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := ColdStart(tt.height, tt.conf); got != tt.want {
			t.Errorf("ColdStart(%d, %d) = %d, want %d", tt.height, tt.conf, got, tt.want)
		}
	}
}

// =============================================================================
// Advance Tests
// =============================================================================

func TestManagerAdvance(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo, DefaultName)
	ctx := context.Background()

	if err := m.Advance(ctx, 10); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}

	m.Load(ctx, 1011, 12)
	if err := m.Advance(ctx, 1010); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if repo.cursors[DefaultName].LastProcessedBlock != 1010 {
		t.Errorf("expected persisted 1010, got %d", repo.cursors[DefaultName].LastProcessedBlock)
	}

	// Same value is a no-op
	if err := m.Advance(ctx, 1010); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
	if repo.saves != 1 {
		t.Errorf("expected 1 save, got %d", repo.saves)
	}
}

func TestManagerAdvance_Monotonic(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo, DefaultName)
	ctx := context.Background()
	m.Load(ctx, 112, 12)

	if err := m.Advance(ctx, 99); !errors.Is(err, ErrNotMonotonic) {
		t.Fatalf("expected ErrNotMonotonic, got %v", err)
	}
	last, _ := m.Last()
	if last != 100 {
		t.Errorf("expected watermark to stay at 100, got %d", last)
	}
}

func TestManagerAdvance_SaveFailure(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo, DefaultName)
	ctx := context.Background()
	m.Load(ctx, 112, 12)

	repo.saveErr = errors.New("db down")
	if err := m.Advance(ctx, 150); err == nil {
		t.Fatal("expected error")
	}
	last, _ := m.Last()
	if last != 100 {
		t.Errorf("failed save must not move the watermark, got %d", last)
	}
}

func TestManagerReset(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo, DefaultName)
	ctx := context.Background()
	m.Load(ctx, 1012, 12)
	m.Advance(ctx, 1005)

	if err := m.Reset(ctx, 500); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	last, _ := m.Last()
	if last != 500 {
		t.Errorf("expected 500 after reset, got %d", last)
	}
	if m.Lag(1012) != 512 {
		t.Errorf("expected lag 512, got %d", m.Lag(1012))
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector(3)
	start := time.Now()

	mc.RecordAdvance(100, start)
	mc.RecordAdvance(200, start.Add(10*time.Second))
	mc.RecordAdvance(300, start.Add(20*time.Second))
	mc.RecordAdvance(400, start.Add(30*time.Second))

	m := mc.GetMetrics()
	if m.Advances != 3 {
		t.Errorf("expected window of 3, got %d", m.Advances)
	}
	if m.BlocksPerSecond != 10 {
		t.Errorf("expected 10 blocks/s, got %f", m.BlocksPerSecond)
	}
	if m.LastAdvanceAt == nil || !m.LastAdvanceAt.Equal(start.Add(30*time.Second)) {
		t.Errorf("unexpected last advance %v", m.LastAdvanceAt)
	}

	mc.Reset()
	if mc.GetMetrics().Advances != 0 {
		t.Error("expected empty metrics after reset")
	}
}
