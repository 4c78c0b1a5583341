// Package tokenmeta introspects token mints and accounts on chain: which
// program owns a mint, its decimals, its transfer-fee schedule, and
// whether a token account enforces incoming transfer memos.
package tokenmeta

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/types"
)

// Metadata is the introspected shape of a mint.
type Metadata struct {
	Mint        solana.PublicKey
	Program     solana.PublicKey
	Decimals    uint8
	TransferFee *types.TransferFeeConfig
}

// Inspector reads token metadata needed to size and order the fee payment.
type Inspector interface {
	Inspect(ctx context.Context, mint solana.PublicKey) (*Metadata, error)
	RequiresIncomingMemo(ctx context.Context, tokenAccount solana.PublicKey) (bool, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
}

// RPCInspector implements Inspector against a Solana RPC node.
type RPCInspector struct {
	client *rpc.Client
	logger *zap.Logger
}

// NewRPCInspector wraps an RPC client.
func NewRPCInspector(client *rpc.Client, logger *zap.Logger) *RPCInspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCInspector{client: client, logger: logger.With(zap.String("module", "tokenmeta"))}
}

// Inspect reads and parses the mint account. Legacy mints carry no
// transfer fee; token-2022 mints may declare one in their extension block.
func (i *RPCInspector) Inspect(ctx context.Context, mint solana.PublicKey) (*Metadata, error) {
	accountInfo, err := i.client.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint account info: %w", err)
	}
	if accountInfo.Value == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}
	owner := accountInfo.Value.Owner
	data := accountInfo.Value.Data.GetBinary()

	switch owner {
	case solana.TokenProgramID:
		decimals, err := mintDecimals(data)
		if err != nil {
			return nil, err
		}
		return &Metadata{Mint: mint, Program: owner, Decimals: decimals}, nil
	case soltoken.Token2022ProgramID:
		epochInfo, err := i.client.GetEpochInfo(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return nil, fmt.Errorf("failed to get epoch info: %w", err)
		}
		meta, err := parseMint(data, epochInfo.Epoch)
		if err != nil {
			return nil, err
		}
		meta.Mint = mint
		meta.Program = owner
		if meta.TransferFee != nil {
			i.logger.Debug("mint charges transfer fees",
				zap.String("mint", mint.String()),
				zap.Uint16("basis_points", meta.TransferFee.BasisPoints),
				zap.String("maximum_fee", meta.TransferFee.MaximumFee.String()))
		}
		return meta, nil
	default:
		return nil, fmt.Errorf("account %s is not a token mint (owner %s)", mint, owner)
	}
}

// RequiresIncomingMemo reports whether the token account enforces memos on
// incoming transfers. Missing accounts and legacy accounts never do.
func (i *RPCInspector) RequiresIncomingMemo(ctx context.Context, tokenAccount solana.PublicKey) (bool, error) {
	accountInfo, err := i.client.GetAccountInfo(ctx, tokenAccount)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("failed to get token account info: %w", err)
	}
	if accountInfo.Value == nil || accountInfo.Value.Owner != soltoken.Token2022ProgramID {
		return false, nil
	}
	return accountRequiresMemo(accountInfo.Value.Data.GetBinary())
}

// AccountExists reports whether the account has been created.
func (i *RPCInspector) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	accountInfo, err := i.client.GetAccountInfo(ctx, account)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return accountInfo.Value != nil, nil
}
