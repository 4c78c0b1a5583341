package signing

import (
	"errors"
	"strings"

	"gasless-swap/pkg/types"
)

// Coordinator diagnostics.
var (
	ErrExecutionInFlight       = errors.New("a signing execution is already in flight")
	ErrSponsorSignatureMissing = errors.New("sponsor response lacks the fee-payer signature")
	ErrFeePayerChanged         = errors.New("sponsor changed the transaction fee payer")
	ErrTransactionMutated      = errors.New("sponsor altered the transaction message")
	ErrIncompleteSignatures    = errors.New("transaction is missing required signatures")
	ErrConfirmationTimeout     = errors.New("transaction confirmation timed out")
)

// onChainMarkers are RPC error fragments that mean the cluster looked at
// the transaction and rejected it, as opposed to the wire failing.
var onChainMarkers = []string{
	"simulation failed",
	"blockhash not found",
	"already been processed",
	"insufficient funds",
	"custom program error",
	"instructionerror",
	"would exceed",
}

// classifySubmitError separates chain rejections from transport failures.
func classifySubmitError(err error) types.Code {
	msg := strings.ToLower(err.Error())
	for _, marker := range onChainMarkers {
		if strings.Contains(msg, marker) {
			return types.CodeOnChain
		}
	}
	return types.CodeNetwork
}
