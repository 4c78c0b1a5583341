package venue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBusiness(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		sentinel error
	}{
		{"liquidity code", "INSUFFICIENT_LIQUIDITY", "no route", ErrInsufficientLiquidity},
		{"no route code", "NO_ROUTE", "cannot bridge pair", ErrInsufficientLiquidity},
		{"no quotes code", "no_quotes", "nothing priced", ErrInsufficientLiquidity},
		{"below minimum code", "BELOW_MINIMUM", "send more", ErrAmountBelowMinimum},
		{"above maximum code", "AMOUNT_TOO_HIGH", "send less", ErrAmountAboveMaximum},
		{"unsupported pair code", "UNSUPPORTED_PAIR", "no such market", ErrUnsupportedPair},
		{"unknown token code", "UNKNOWN_TOKEN", "asset not listed", ErrUnsupportedPair},
		{"expired code", "DEADLINE_EXCEEDED", "too slow", ErrQuoteExpired},
		{"minimum by message", "ERR-104", "amount too low for route", ErrAmountBelowMinimum},
		{"maximum by message", "ERR-105", "exceeds the route maximum", ErrAmountAboveMaximum},
		{"liquidity by message", "ERR-106", "not enough liquidity right now", ErrInsufficientLiquidity},
		{"unclassifiable", "ERR-500", "internal venue error", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			be := classifyBusiness(tc.code, tc.message)
			assert.Equal(t, tc.code, be.VenueCode)
			assert.Equal(t, tc.message, be.Message)
			if tc.sentinel == nil {
				assert.Nil(t, be.Unwrap())
			} else {
				assert.ErrorIs(t, be, tc.sentinel)
			}
		})
	}
}

func TestBusinessErrorFormatting(t *testing.T) {
	withCode := classifyBusiness("AMOUNT_TOO_LOW", "send at least 5 USDC")
	assert.Equal(t, "venue rejected request (AMOUNT_TOO_LOW): send at least 5 USDC", withCode.Error())

	withoutCode := classifyBusiness("", "something odd happened")
	assert.Equal(t, "venue rejected request: something odd happened", withoutCode.Error())
}

func TestBusinessErrorDoesNotMatchOtherSentinels(t *testing.T) {
	be := classifyBusiness("QUOTE_EXPIRED", "quote is stale")
	assert.ErrorIs(t, be, ErrQuoteExpired)
	assert.False(t, errors.Is(be, ErrInsufficientLiquidity))
	assert.False(t, errors.Is(be, ErrOrderNotFound))
}
