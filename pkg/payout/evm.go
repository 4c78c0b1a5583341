package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// EVMVerifier checks payout receipts on EVM-compatible chains.
type EVMVerifier struct {
	client *ethclient.Client
	logger *zap.Logger
}

// NewEVMVerifier connects to the RPC endpoint.
func NewEVMVerifier(rpcURL string, logger *zap.Logger) (*EVMVerifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMVerifier{client: client, logger: logger.With(zap.String("module", "payout"))}, nil
}

// VerifyPayout looks up the transaction receipt. A transaction the node
// does not know yet is reported unconfirmed, not as an error.
func (v *EVMVerifier) VerifyPayout(ctx context.Context, txHash string) (*Receipt, error) {
	const op = "payout.EVMVerifier.VerifyPayout"

	normalized := txHash
	if !strings.HasPrefix(normalized, "0x") {
		normalized = "0x" + normalized
	}
	if len(normalized) != 66 {
		return nil, types.E(types.CodeInvalidInput, op, fmt.Errorf("invalid transaction hash %q", txHash))
	}

	receipt, err := v.client.TransactionReceipt(ctx, common.HexToHash(normalized))
	if errors.Is(err, ethereum.NotFound) {
		v.logger.Debug("payout transaction not found yet", zap.String("tx_hash", txHash))
		return &Receipt{TxHash: txHash}, nil
	}
	if err != nil {
		return nil, types.E(types.CodeNetwork, op, err)
	}

	out := &Receipt{
		TxHash:    txHash,
		Confirmed: true,
		Success:   receipt.Status == ethtypes.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// Close releases the RPC connection.
func (v *EVMVerifier) Close() {
	v.client.Close()
}
