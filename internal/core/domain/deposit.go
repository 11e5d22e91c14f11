package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus is the lifecycle state of a deposit.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
)

// Valid reports whether s is a known status.
func (s DepositStatus) Valid() bool {
	switch s {
	case DepositStatusPending, DepositStatusConfirmed:
		return true
	}
	return false
}

// ParseDepositStatus converts a stored value into a DepositStatus.
func ParseDepositStatus(s string) (DepositStatus, error) {
	status := DepositStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown deposit status %q", s)
	}
	return status, nil
}

// DepositRecord is one observed token transfer into a deposit address.
// TxHash is the idempotency key. PendingSweepTxHash holds a sweep that was
// broadcast but whose outcome was not known when the sweep returned.
type DepositRecord struct {
	ID                 string
	TxHash             string
	WalletID           string
	Amount             decimal.Decimal
	BlockNumber        uint64
	Confirmations      uint64
	Status             DepositStatus
	Swept              bool
	SweepTxHash        string
	PendingSweepTxHash string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsConfirmed reports whether the deposit has been credited.
func (d *DepositRecord) IsConfirmed() bool {
	return d.Status == DepositStatusConfirmed
}

// Sweepable reports whether the deposit is confirmed and still on its deposit address.
func (d *DepositRecord) Sweepable() bool {
	return d.Status == DepositStatusConfirmed && !d.Swept
}

// TxState is the ledger's view of a transaction this engine sent.
type TxState int

const (
	// TxPending covers both "not mined yet" and "dropped".
	TxPending TxState = iota
	TxSucceeded
	TxReverted
)

func (s TxState) String() string {
	switch s {
	case TxSucceeded:
		return "succeeded"
	case TxReverted:
		return "reverted"
	default:
		return "pending"
	}
}

// TxOutcome is the receipt summary of a sent transaction. BlockNumber is
// zero while pending.
type TxOutcome struct {
	State       TxState
	BlockNumber uint64
}

// TransferEvent is a token transfer log as reported by the ledger.
type TransferEvent struct {
	TxHash      string
	From        Address
	To          Address
	Amount      decimal.Decimal
	BlockNumber uint64
}
