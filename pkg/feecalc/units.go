package feecalc

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SmallestUnits converts a human-entered decimal amount to integer smallest
// units. Amounts with more fractional digits than the token carries are
// rejected rather than rounded.
func SmallestUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", amount)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders integer smallest units as a decimal string.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
