package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
)

// Gateway is the boundary between the custody engine and the ledger.
// Amounts are in whole token (or native) units. Network failures come back
// as *domain.TransientGatewayError.
type Gateway interface {
	// CurrentHeight returns the latest block number
	CurrentHeight(ctx context.Context) (uint64, error)

	// TransferEvents returns token transfer logs in [from, to], inclusive
	TransferEvents(ctx context.Context, from, to uint64) ([]domain.TransferEvent, error)

	// ReceiptConfirmations returns the depth of a transaction, 0 when unknown
	ReceiptConfirmations(ctx context.Context, txHash string) (uint64, error)

	// TransactionOutcome reports whether a sent transaction was mined and succeeded
	TransactionOutcome(ctx context.Context, txHash string) (domain.TxOutcome, error)

	// NativeBalance returns the gas asset balance of an address
	NativeBalance(ctx context.Context, address domain.Address) (decimal.Decimal, error)

	// TokenBalance returns the token balance of an address
	TokenBalance(ctx context.Context, address domain.Address) (decimal.Decimal, error)

	// EstimateTransferGasCost returns the native cost of one token transfer
	EstimateTransferGasCost(ctx context.Context) (decimal.Decimal, error)

	// SendNativeTransfer signs with secret, sends, and waits for one confirmation.
	// A non-empty hash with a *domain.TransientGatewayError means the
	// transaction was broadcast and its outcome is unknown.
	SendNativeTransfer(ctx context.Context, secret string, to domain.Address, amount decimal.Decimal) (string, error)

	// SendTokenTransfer behaves like SendNativeTransfer for the token
	SendTokenTransfer(ctx context.Context, secret string, to domain.Address, amount decimal.Decimal) (string, error)
}

// KeyPair is a freshly generated account.
type KeyPair struct {
	Address domain.Address
	Secret  string // hex private key, never stored unencrypted
}
