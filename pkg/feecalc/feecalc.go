// Package feecalc holds the pure fee arithmetic of the swap pipeline:
// gross-up math for fee-charging tokens and sizing of the in-token gas
// reimbursement. All token amounts are integer smallest units; decimal
// inputs go through shopspring/decimal, never binary floating point.
package feecalc

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"gasless-swap/pkg/types"
)

const basisPointDenominator = 10000

var bpsDenom = big.NewInt(basisPointDenominator)

// GrossAmount returns the amount to send so that targetNet survives the
// token's transfer fee. The percentage gross-up and the maximum-fee cap are
// both computed and the smaller implied fee wins.
func GrossAmount(targetNet *big.Int, fee *types.TransferFeeConfig) (*big.Int, error) {
	if targetNet == nil || targetNet.Sign() < 0 {
		return nil, fmt.Errorf("target net amount must be non-negative")
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if fee == nil || fee.BasisPoints == 0 || targetNet.Sign() == 0 {
		return new(big.Int).Set(targetNet), nil
	}

	// raw = ceil(net * 10000 / (10000 - bps))
	num := new(big.Int).Mul(targetNet, bpsDenom)
	den := big.NewInt(basisPointDenominator - int64(fee.BasisPoints))
	raw := ceilDiv(num, den)

	impliedFee := new(big.Int).Sub(raw, targetNet)
	if impliedFee.Cmp(fee.MaximumFee) >= 0 {
		return new(big.Int).Add(targetNet, fee.MaximumFee), nil
	}
	return raw, nil
}

// TransferFee returns the fee the token program charges on a transfer of
// gross: the basis-points cut rounded up, capped at the configured maximum.
func TransferFee(gross *big.Int, fee *types.TransferFeeConfig) (*big.Int, error) {
	if gross == nil || gross.Sign() < 0 {
		return nil, fmt.Errorf("gross amount must be non-negative")
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if fee == nil || fee.BasisPoints == 0 {
		return big.NewInt(0), nil
	}
	cut := ceilDiv(new(big.Int).Mul(gross, big.NewInt(int64(fee.BasisPoints))), bpsDenom)
	if cut.Cmp(fee.MaximumFee) > 0 {
		return new(big.Int).Set(fee.MaximumFee), nil
	}
	return cut, nil
}

// TransferCheck is the result of validating a (gross, expectedNet) pair.
type TransferCheck struct {
	Valid    bool
	Fee      *big.Int
	Received *big.Int
	Reason   string
}

// ValidateTransfer recomputes the fee charged on gross and confirms the
// recipient still receives at least expectedNet.
func ValidateTransfer(gross, expectedNet *big.Int, fee *types.TransferFeeConfig) (TransferCheck, error) {
	if expectedNet == nil || expectedNet.Sign() < 0 {
		return TransferCheck{}, fmt.Errorf("expected net amount must be non-negative")
	}
	cut, err := TransferFee(gross, fee)
	if err != nil {
		return TransferCheck{}, err
	}
	received := new(big.Int).Sub(gross, cut)
	check := TransferCheck{Fee: cut, Received: received}
	if received.Cmp(expectedNet) < 0 {
		check.Reason = fmt.Sprintf("transfer of %s nets %s after a %s fee, below the required %s",
			gross, received, cut, expectedNet)
		return check, nil
	}
	check.Valid = true
	return check, nil
}

// ReimbursementAmount converts an oracle-priced token amount into smallest
// units, applying the volatility buffer in basis points and rounding up so
// the fee payer is never underpaid.
func ReimbursementAmount(tokenAmount decimal.Decimal, bufferBps uint32, decimals uint8) (*big.Int, error) {
	if tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("token amount must be positive, got %s", tokenAmount)
	}
	buffered := tokenAmount.Mul(decimal.New(int64(basisPointDenominator+bufferBps), -4))
	units := buffered.Shift(int32(decimals)).Ceil()
	return units.BigInt(), nil
}

// ceilDiv divides num by den rounding toward positive infinity. den must
// be positive.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
