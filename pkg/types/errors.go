package types

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure into the closed set shown to users.
type Code string

const (
	// CodeInvalidInput covers malformed parameters caught before any
	// network call: bad addresses, unparseable amounts, degenerate fee
	// configs.
	CodeInvalidInput Code = "invalid_input"
	// CodeVenue covers business rejections from the liquidity venue such
	// as insufficient liquidity or amount bounds.
	CodeVenue Code = "venue"
	// CodeSigning covers failures while collecting signatures: user
	// rejection, serialization problems, trusted-signer refusals.
	CodeSigning Code = "signing"
	// CodeNetwork covers transport failures and timeouts.
	CodeNetwork Code = "network"
	// CodeOnChain covers transactions that reached the chain and failed
	// there.
	CodeOnChain Code = "onchain"
	// CodeInternal is the fallback for everything else.
	CodeInternal Code = "internal"
)

// SwapError attaches a classification code and the failing operation to an
// underlying error.
type SwapError struct {
	Code Code
	Op   string
	Err  error
}

func (e *SwapError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// E wraps err with a code and operation name.
func E(code Code, op string, err error) *SwapError {
	return &SwapError{Code: code, Op: op, Err: err}
}

// CodeOf walks the error chain and returns the outermost classification,
// or CodeInternal when none was attached.
func CodeOf(err error) Code {
	var se *SwapError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// HTTPError is a non-2xx response from an upstream HTTP API that carried
// no parseable business error.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
