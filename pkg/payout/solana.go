package payout

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// SolanaVerifier checks payout signatures against a Solana RPC node.
type SolanaVerifier struct {
	client *rpc.Client
	logger *zap.Logger
}

// NewSolanaVerifier wraps an RPC endpoint.
func NewSolanaVerifier(rpcURL string, logger *zap.Logger) *SolanaVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaVerifier{
		client: rpc.New(rpcURL),
		logger: logger.With(zap.String("module", "payout")),
	}
}

// VerifyPayout reports whether the signature reached confirmed commitment
// and whether it executed cleanly. An unknown signature is unconfirmed,
// not an error.
func (v *SolanaVerifier) VerifyPayout(ctx context.Context, txHash string) (*Receipt, error) {
	const op = "payout.SolanaVerifier.VerifyPayout"

	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return nil, types.E(types.CodeInvalidInput, op, fmt.Errorf("invalid transaction signature %q: %w", txHash, err))
	}

	out, err := v.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, types.E(types.CodeNetwork, op, err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		v.logger.Debug("payout signature not found yet", zap.String("tx_hash", txHash))
		return &Receipt{TxHash: txHash}, nil
	}

	status := out.Value[0]
	confirmed := status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized
	return &Receipt{
		TxHash:    txHash,
		Confirmed: confirmed,
		Success:   status.Err == nil,
		Slot:      status.Slot,
	}, nil
}
