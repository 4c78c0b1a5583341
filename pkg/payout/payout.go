// Package payout verifies the destination-chain leg of a completed swap:
// the transaction the venue claims paid the recipient.
package payout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// Receipt is the observed state of a payout transaction.
type Receipt struct {
	TxHash    string
	Confirmed bool
	// Success is meaningful only when Confirmed.
	Success bool
	// BlockNumber is set for EVM chains, Slot for Solana.
	BlockNumber uint64
	Slot        uint64
}

// Verifier checks a payout transaction on one chain.
type Verifier interface {
	VerifyPayout(ctx context.Context, txHash string) (*Receipt, error)
}

// NewVerifier returns the verifier for a destination chain.
func NewVerifier(chainID, rpcURL string, logger *zap.Logger) (Verifier, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL configured for chain %s", chainID)
	}
	chainType, err := types.ChainTypeOf(chainID)
	if err != nil {
		return nil, err
	}
	switch chainType {
	case types.ChainSolana:
		return NewSolanaVerifier(rpcURL, logger), nil
	case types.ChainEVM:
		return NewEVMVerifier(rpcURL, logger)
	default:
		return nil, fmt.Errorf("payout verification not supported for chain: %s", chainID)
	}
}
