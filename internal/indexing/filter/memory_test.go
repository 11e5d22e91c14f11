package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/custody/internal/core/domain"
)

type stubSource struct {
	addrs []domain.Address
	err   error
}

func (s *stubSource) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	return s.addrs, s.err
}

func TestMemoryFilter(t *testing.T) {
	f := NewMemoryFilter(nil)

	f.Add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	if !f.Contains("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed") {
		t.Error("Expected filter to contain the address")
	}
	if !f.Contains("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED") {
		t.Error("Expected filter to be case-insensitive")
	}
	if f.Contains("0x0000000000000000000000000000000000000001") {
		t.Error("Expected filter not to contain other addresses")
	}
	if f.Size() != 1 {
		t.Errorf("Expected size to be 1, got %d", f.Size())
	}

	// Rebuild without a source keeps the set
	if err := f.Rebuild(context.Background()); err != nil {
		t.Errorf("Rebuild failed: %v", err)
	}
	if f.Size() != 1 {
		t.Errorf("Expected size to stay 1, got %d", f.Size())
	}
}

func TestMemoryFilter_Rebuild(t *testing.T) {
	src := &stubSource{addrs: []domain.Address{"0xAbc0000000000000000000000000000000000001"}}
	f := NewMemoryFilter(src)
	f.Add("0x0000000000000000000000000000000000000002")

	if err := f.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if f.Size() != 1 || !f.Contains("0xabc0000000000000000000000000000000000001") {
		t.Errorf("Expected rebuilt set from source, got %v", f.Addresses())
	}

	src.err = errors.New("db down")
	if err := f.Rebuild(context.Background()); err == nil {
		t.Error("Expected error from source")
	}
	if f.Size() != 1 {
		t.Error("Failed rebuild must keep the previous set")
	}
}
