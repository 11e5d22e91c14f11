package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a chain address in its stored (EIP-55 checksummed) form.
//
// Equality between addresses is always case-insensitive: compare with Equal
// or index by Key, never with ==.
type Address string

// ParseAddress validates a hex address and returns its checksummed form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return Address(common.HexToAddress(s).Hex()), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Key returns the canonical lookup key (lower-case hex).
func (a Address) Key() string {
	return strings.ToLower(string(a))
}

// Equal reports whether two addresses refer to the same account.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

func (a Address) String() string {
	return string(a)
}
