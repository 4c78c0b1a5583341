// Package venue abstracts the liquidity venue that prices and fulfills
// cross-chain swaps. Implementations return typed business errors so the
// caller can distinguish "the venue said no" from transport failures.
package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gasless-swap/pkg/types"
)

// Provider is the venue surface the pipeline depends on.
type Provider interface {
	// CreateOrder prices a swap and returns an executable quote.
	CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Quote, error)
	// GetOrderStatus reports the current lifecycle state of an order.
	GetOrderStatus(ctx context.Context, orderID string) (*types.OrderInfo, error)
	// GetTokens lists the assets the venue can quote.
	GetTokens(ctx context.Context) ([]types.Token, error)
}

// Business rejections the venue can answer a quote request with.
var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for pair")
	ErrAmountBelowMinimum    = errors.New("amount below venue minimum")
	ErrAmountAboveMaximum    = errors.New("amount above venue maximum")
	ErrUnsupportedPair       = errors.New("unsupported token pair")
	ErrQuoteExpired          = errors.New("quote expired")
	ErrOrderNotFound         = errors.New("order not found")
)

// BusinessError is a venue rejection with the upstream code and message
// preserved. Unwrap exposes the matched sentinel, when one applies.
type BusinessError struct {
	VenueCode string
	Message   string
	sentinel  error
}

func (e *BusinessError) Error() string {
	if e.VenueCode == "" {
		return fmt.Sprintf("venue rejected request: %s", e.Message)
	}
	return fmt.Sprintf("venue rejected request (%s): %s", e.VenueCode, e.Message)
}

func (e *BusinessError) Unwrap() error { return e.sentinel }

// classifyBusiness maps an upstream error code and message onto the typed
// sentinels. Matching is best effort: venues reuse codes across distinct
// conditions, so unknown amount-ish failures fall back to the liquidity
// sentinel rather than staying unclassified.
func classifyBusiness(code, message string) *BusinessError {
	be := &BusinessError{VenueCode: code, Message: message}
	switch strings.ToUpper(code) {
	case "INSUFFICIENT_LIQUIDITY", "NO_ROUTE", "NO_QUOTES":
		be.sentinel = ErrInsufficientLiquidity
	case "AMOUNT_TOO_LOW", "BELOW_MINIMUM":
		be.sentinel = ErrAmountBelowMinimum
	case "AMOUNT_TOO_HIGH", "ABOVE_MAXIMUM":
		be.sentinel = ErrAmountAboveMaximum
	case "UNSUPPORTED_PAIR", "UNKNOWN_TOKEN", "UNSUPPORTED_CHAIN":
		be.sentinel = ErrUnsupportedPair
	case "QUOTE_EXPIRED", "DEADLINE_EXCEEDED":
		be.sentinel = ErrQuoteExpired
	default:
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "minimum") || strings.Contains(lower, "too low"):
			be.sentinel = ErrAmountBelowMinimum
		case strings.Contains(lower, "maximum") || strings.Contains(lower, "too high"):
			be.sentinel = ErrAmountAboveMaximum
		case strings.Contains(lower, "liquidity") || strings.Contains(lower, "amount"):
			be.sentinel = ErrInsufficientLiquidity
		}
	}
	return be
}
