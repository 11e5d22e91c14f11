package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the lifecycle state of a hot wallet withdrawal.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
)

// Valid reports whether s is a known status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusCompleted, WithdrawalStatusFailed:
		return true
	}
	return false
}

// ParseWithdrawalStatus converts a stored value into a WithdrawalStatus.
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	status := WithdrawalStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown withdrawal status %q", s)
	}
	return status, nil
}

// Withdrawal is an operator-initiated token transfer out of the hot wallet.
type Withdrawal struct {
	ID            string
	ToAddress     Address
	Amount        decimal.Decimal
	Status        WithdrawalStatus
	TxHash        string
	Notes         string
	FailureReason string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
