package signing

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCSubmitter submits directly to a Solana RPC node.
type RPCSubmitter struct {
	client        *rpc.Client
	skipPreflight bool
	maxRetries    *uint
}

// RPCSubmitterOption customizes an RPCSubmitter.
type RPCSubmitterOption func(*RPCSubmitter)

// WithSkipPreflight disables the preflight simulation.
func WithSkipPreflight(skip bool) RPCSubmitterOption {
	return func(s *RPCSubmitter) { s.skipPreflight = skip }
}

// WithMaxRetries bounds the node's own resubmission attempts.
func WithMaxRetries(n uint) RPCSubmitterOption {
	return func(s *RPCSubmitter) { s.maxRetries = &n }
}

// NewRPCSubmitter wraps an RPC client.
func NewRPCSubmitter(client *rpc.Client, opts ...RPCSubmitterOption) *RPCSubmitter {
	s := &RPCSubmitter{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the fully signed transaction.
func (s *RPCSubmitter) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       s.skipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	}
	if s.maxRetries != nil {
		retries := *s.maxRetries
		opts.MaxRetries = &retries
	}
	return s.client.SendTransactionWithOpts(ctx, tx, opts)
}

// Status reports whether the signature has reached confirmed or finalized
// commitment. A status that is not yet visible is not an error.
func (s *RPCSubmitter) Status(ctx context.Context, sig solana.Signature) (TxStatus, error) {
	out, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return TxStatus{}, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return TxStatus{}, nil
	}
	status := out.Value[0]
	result := TxStatus{Slot: status.Slot}
	if status.Err != nil {
		result.ExecutionErr = fmt.Errorf("%v", status.Err)
	}
	if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		result.Confirmed = true
	}
	return result, nil
}
