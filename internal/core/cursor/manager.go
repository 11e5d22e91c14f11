package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

var (
	// ErrNotLoaded is returned when the watermark is used before Load.
	ErrNotLoaded = errors.New("cursor not loaded")

	// ErrNotMonotonic is returned when Advance would move the watermark backwards.
	ErrNotMonotonic = errors.New("cursor cannot move backwards")
)

// Manager owns the scan watermark and persists it through a repository.
type Manager struct {
	repo    storage.CursorRepository
	name    string
	mu      sync.Mutex
	last    uint64
	loaded  bool
	metrics *MetricsCollector
}

// NewManager creates a watermark manager for the named cursor.
func NewManager(repo storage.CursorRepository, name string) *Manager {
	if name == "" {
		name = DefaultName
	}
	return &Manager{
		repo:    repo,
		name:    name,
		metrics: NewMetricsCollector(100),
	}
}

// Name returns the cursor name.
func (m *Manager) Name() string {
	return m.name
}

// Load returns the watermark, reading it from the repository on first use.
// With nothing stored it is derived from the chain height.
func (m *Manager) Load(ctx context.Context, height, requiredConfirmations uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return m.last, nil
	}

	stored, err := m.repo.Get(ctx, m.name)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	if stored != nil {
		m.last = stored.LastProcessedBlock
	} else {
		m.last = ColdStart(height, requiredConfirmations)
	}
	m.loaded = true
	return m.last, nil
}

// Last returns the in-memory watermark.
func (m *Manager) Last() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return 0, ErrNotLoaded
	}
	return m.last, nil
}

// Advance persists a new watermark. The in-memory value only changes once
// the repository accepted it.
func (m *Manager) Advance(ctx context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return ErrNotLoaded
	}
	if block < m.last {
		return fmt.Errorf("%w: at %d, got %d", ErrNotMonotonic, m.last, block)
	}
	if block == m.last {
		return nil
	}

	if err := m.save(ctx, block); err != nil {
		return err
	}
	m.metrics.RecordAdvance(block, time.Now())
	return nil
}

// Reset overwrites the watermark, in either direction.
func (m *Manager) Reset(ctx context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.save(ctx, block); err != nil {
		return err
	}
	m.loaded = true
	m.metrics.Reset()
	return nil
}

// Lag returns how many blocks the watermark trails the chain tip.
func (m *Manager) Lag(height uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || height <= m.last {
		return 0
	}
	return height - m.last
}

// GetMetrics returns scan throughput.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics.GetMetrics()
}

func (m *Manager) save(ctx context.Context, block uint64) error {
	c := &domain.Cursor{
		Name:               m.name,
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC(),
	}
	if err := m.repo.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	m.last = block
	return nil
}

// ColdStart derives the starting watermark from the chain height.
func ColdStart(height, requiredConfirmations uint64) uint64 {
	if height <= requiredConfirmations {
		return 0
	}
	return height - requiredConfirmations
}
