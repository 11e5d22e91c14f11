package evm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the gas asset.
const NativeDecimals = 18

// ToBaseUnits converts a whole-unit amount into integer base units,
// truncating anything below one base unit.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

// FromBaseUnits converts integer base units into a whole-unit amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
