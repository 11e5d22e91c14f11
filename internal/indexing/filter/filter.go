package filter

import (
	"context"

	"github.com/vietddude/custody/internal/core/domain"
)

// Filter defines the interface for deposit address filtering.
// Matching is case-insensitive.
type Filter interface {
	// Contains checks if an address is tracked
	Contains(address domain.Address) bool

	// Add adds an address to the filter
	Add(address domain.Address)

	// Size returns the number of tracked addresses
	Size() int

	// Rebuild reloads the tracked set from its source
	Rebuild(ctx context.Context) error
}

// AddressSource lists the deposit addresses to track.
type AddressSource interface {
	ListAddresses(ctx context.Context) ([]domain.Address, error)
}
