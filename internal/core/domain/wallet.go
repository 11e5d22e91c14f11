package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the custodial deposit wallet of a single user.
type Wallet struct {
	ID              string
	UserID          string
	Address         Address
	EncryptedSecret string
	// Balance is the credited balance. Only a confirmed deposit increases it.
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HotWallet is the operational wallet that receives sweeps and pays for gas.
type HotWallet struct {
	Address         Address
	EncryptedSecret string
	CreatedAt       time.Time
}

// HotWalletBalances is an on-chain snapshot of the hot wallet.
type HotWalletBalances struct {
	Address       Address         `json:"address"`
	TokenBalance  decimal.Decimal `json:"token_balance"`
	NativeBalance decimal.Decimal `json:"native_balance"`
}
