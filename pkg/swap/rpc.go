package swap

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCBlockhashSource fetches recent blockhashes from a Solana RPC node.
type RPCBlockhashSource struct {
	client *rpc.Client
}

// NewRPCBlockhashSource wraps an RPC client.
func NewRPCBlockhashSource(client *rpc.Client) *RPCBlockhashSource {
	return &RPCBlockhashSource{client: client}
}

// LatestBlockhash returns a blockhash at confirmed commitment.
func (s *RPCBlockhashSource) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty blockhash response")
	}
	return out.Value.Blockhash, nil
}
