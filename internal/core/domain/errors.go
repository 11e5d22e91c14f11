package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateDeposit is returned by storage when a deposit with the same
	// tx hash already exists. Callers treat it as success.
	ErrDuplicateDeposit = errors.New("duplicate deposit")

	// ErrIntegrity matches every IntegrityError.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrHotWalletNotConfigured is returned when the hot wallet has not been initialized.
	ErrHotWalletNotConfigured = errors.New("hot wallet not configured")

	// ErrNotFound is returned by lookups that require the row to exist.
	ErrNotFound = errors.New("not found")
)

// TransientGatewayError wraps a ledger call that failed for network reasons.
// The work is retried on the next cycle.
type TransientGatewayError struct {
	Op  string
	Err error
}

func (e *TransientGatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransientGatewayError) Unwrap() error { return e.Err }

// InsufficientGasError reports that an address cannot pay for a transfer.
type InsufficientGasError struct {
	Address Address
	Have    decimal.Decimal
	Need    decimal.Decimal
}

func (e *InsufficientGasError) Error() string {
	return fmt.Sprintf("insufficient gas on %s: have %s, need %s", e.Address, e.Have, e.Need)
}

// InsufficientBalanceError reports that an address holds fewer tokens than requested.
type InsufficientBalanceError struct {
	Address Address
	Have    decimal.Decimal
	Need    decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: have %s, need %s", e.Address, e.Have, e.Need)
}

// IntegrityError is returned when an encrypted secret is malformed or was tampered with.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: %s", ErrIntegrity, e.Reason)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// PersistenceError reports that the store itself is unreachable.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence unavailable: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
