package filter

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/custody/internal/core/domain"
)

// MemoryFilter implements Filter using an in-memory map keyed by the
// canonical (lower-case) address.
type MemoryFilter struct {
	source    AddressSource
	addresses map[string]domain.Address
	mu        sync.RWMutex
}

// NewMemoryFilter creates a new in-memory filter. source may be nil, in
// which case Rebuild keeps the current set.
func NewMemoryFilter(source AddressSource) *MemoryFilter {
	return &MemoryFilter{
		source:    source,
		addresses: make(map[string]domain.Address),
	}
}

// Contains checks if an address is tracked.
func (f *MemoryFilter) Contains(address domain.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.addresses[address.Key()]
	return exists
}

// Add adds an address to the filter.
func (f *MemoryFilter) Add(address domain.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses[address.Key()] = address
}

// Size returns the number of tracked addresses.
func (f *MemoryFilter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.addresses)
}

// Rebuild replaces the tracked set with the source's current addresses.
func (f *MemoryFilter) Rebuild(ctx context.Context) error {
	if f.source == nil {
		return nil
	}
	addrs, err := f.source.ListAddresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list addresses: %w", err)
	}

	next := make(map[string]domain.Address, len(addrs))
	for _, a := range addrs {
		next[a.Key()] = a
	}

	f.mu.Lock()
	f.addresses = next
	f.mu.Unlock()
	return nil
}

// Addresses returns the list of all tracked addresses.
func (f *MemoryFilter) Addresses() []domain.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]domain.Address, 0, len(f.addresses))
	for _, addr := range f.addresses {
		result = append(result, addr)
	}
	return result
}
