// Package swap runs one accepted quote end to end: freeze the quote
// stream, size the sponsor reimbursement, assemble and dual-sign the
// transaction, submit it, notify the venue, and watch the order to a
// terminal state. The quote stream is resumed only when execution fails,
// so the user can immediately retry on fresh prices.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/history"
	"gasless-swap/pkg/oracle"
	"gasless-swap/pkg/signing"
	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/tokenmeta"
	"gasless-swap/pkg/tracker"
	"gasless-swap/pkg/txassembly"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
	"gasless-swap/pkg/wallet"
)

const defaultBufferBps = 1000

// ErrQuoteExpired rejects execution of a quote past its expiry.
var ErrQuoteExpired = errors.New("quote has expired, request a fresh one")

// QuoteGate freezes and resumes the quote stream around an execution.
// Implemented by quote.Controller.
type QuoteGate interface {
	Pause()
	Resume()
}

// Assembler builds and compiles the swap transaction. Implemented by
// txassembly.Assembler.
type Assembler interface {
	Assemble(p txassembly.Params) (*types.PreparedInstructionSet, error)
	BuildTransaction(set *types.PreparedInstructionSet, blockhash solana.Hash) (*solana.Transaction, error)
}

// Coordinator runs the dual-signing flow. Implemented by
// signing.Coordinator.
type Coordinator interface {
	Execute(ctx context.Context, tx *solana.Transaction, user wallet.Wallet) (*signing.Receipt, error)
}

// OrderTracker watches the order after submission. Implemented by
// tracker.Tracker.
type OrderTracker interface {
	Track(ctx context.Context, orderID string, onUpdate tracker.UpdateFunc) (*tracker.Result, error)
}

// HistoryStore persists executed swaps. Implemented by history.Store.
type HistoryStore interface {
	Upsert(ctx context.Context, r *history.Record) error
	UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus, dstTxHash string) error
}

// BlockhashSource provides a fresh recent blockhash. Implemented by
// RPCBlockhashSource.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// DepositNotifier is the optional venue surface for reporting the deposit
// transaction hash. IntentsClient implements it; the generic REST venue
// does not need it.
type DepositNotifier interface {
	SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error
}

// Deps are the executor's collaborators. Gate and History are optional.
type Deps struct {
	Venue       venue.Provider
	Gate        QuoteGate
	Inspector   tokenmeta.Inspector
	Oracle      oracle.PriceSource
	Assembler   Assembler
	Blockhash   BlockhashSource
	Coordinator Coordinator
	Tracker     OrderTracker
	History     HistoryStore
	Wallet      wallet.Wallet
	FeePayer    solana.PublicKey
	Logger      *zap.Logger
}

// Config tunes execution.
type Config struct {
	// BufferBps pads oracle conversions against price movement.
	BufferBps                uint32
	PriorityFeeMicroLamports uint64
}

// Options vary per execution.
type Options struct {
	// Memo overrides the default memo text when one is required.
	Memo string
	// Recipient is the destination address, kept for the history record.
	Recipient string
	// Watch tracks the order to a terminal state after submission.
	Watch bool
	// OnOrderUpdate receives tracking observations.
	OnOrderUpdate tracker.UpdateFunc
}

// Result reports a submitted execution. Tracking is nil unless Watch was
// set and tracking ran to an outcome.
type Result struct {
	OrderID     string
	Signature   solana.Signature
	Receipt     *signing.Receipt
	Tracking    *tracker.Result
	FeePaid     *big.Int
	GasLamports uint64
}

// Executor orchestrates a single swap.
type Executor struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewExecutor wires an executor.
func NewExecutor(deps Deps, cfg Config) *Executor {
	if cfg.BufferBps == 0 {
		cfg.BufferBps = defaultBufferBps
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{deps: deps, cfg: cfg, logger: logger.With(zap.String("module", "swap"))}
}

// Execute runs the accepted quote. Once the transaction has been
// submitted, failures in the tracking phase return the partial Result
// alongside the error so callers can still surface the signature.
func (e *Executor) Execute(ctx context.Context, q *types.Quote, opts Options) (*Result, error) {
	const op = "swap.Execute"

	if q == nil {
		return nil, types.E(types.CodeInvalidInput, op, errors.New("quote is nil"))
	}
	if err := q.Validate(); err != nil {
		return nil, types.E(types.CodeInvalidInput, op, err)
	}
	if q.TTL(time.Now()) <= 0 {
		return nil, types.E(types.CodeInvalidInput, op, ErrQuoteExpired)
	}

	if e.deps.Gate != nil {
		e.deps.Gate.Pause()
	}
	submitted := false
	defer func() {
		if !submitted && e.deps.Gate != nil {
			e.deps.Gate.Resume()
		}
	}()

	feeToken, err := e.resolveFeeToken(ctx, q.SourceToken)
	if err != nil {
		return nil, err
	}

	gasLamports := q.Fees.GasLamports
	if gasLamports == 0 {
		return nil, types.E(types.CodeInvalidInput, op, txassembly.ErrMissingGasCost)
	}
	reimbursement, err := e.reimbursement(ctx, q, feeToken, gasLamports)
	if err != nil {
		return nil, err
	}

	createATA, err := e.sponsorNeedsATA(ctx, feeToken)
	if err != nil {
		e.logger.Debug("sponsor token account lookup failed, including idempotent create", zap.Error(err))
		createATA = true
	}

	set, err := e.deps.Assembler.Assemble(txassembly.Params{
		Quote:                    q,
		UserAddress:              e.deps.Wallet.PublicKey(),
		FeePayer:                 e.deps.FeePayer,
		FeeToken:                 feeToken,
		GasLamports:              gasLamports,
		Reimbursement:            reimbursement,
		Memo:                     opts.Memo,
		CreateFeeATA:             createATA,
		PriorityFeeMicroLamports: e.cfg.PriorityFeeMicroLamports,
	})
	if err != nil {
		return nil, err
	}

	blockhash, err := e.deps.Blockhash.LatestBlockhash(ctx)
	if err != nil {
		return nil, types.E(types.CodeNetwork, op, fmt.Errorf("failed to fetch blockhash: %w", err))
	}
	tx, err := e.deps.Assembler.BuildTransaction(set, blockhash)
	if err != nil {
		return nil, err
	}

	e.logger.Info("executing swap",
		zap.String("quote_id", q.ID),
		zap.String("fee_token", feeToken.Symbol),
		zap.String("reimbursement", reimbursement.String()),
		zap.Uint64("gas_lamports", gasLamports))

	receipt, err := e.deps.Coordinator.Execute(ctx, tx, e.deps.Wallet)
	if err != nil {
		return nil, err
	}
	submitted = true

	e.notifyVenue(ctx, q, receipt.Signature)

	result := &Result{
		OrderID:     q.ID,
		Signature:   receipt.Signature,
		Receipt:     receipt,
		FeePaid:     reimbursement,
		GasLamports: gasLamports,
	}
	e.recordSubmission(ctx, q, reimbursement, gasLamports, receipt.Signature, opts.Recipient)

	if !opts.Watch || e.deps.Tracker == nil {
		return result, nil
	}

	tracking, err := e.deps.Tracker.Track(ctx, q.ID, func(info *types.OrderInfo, attempt int) {
		if e.deps.History != nil {
			if herr := e.deps.History.UpdateStatus(ctx, q.ID, info.Status, info.DstTxHash); herr != nil {
				e.logger.Warn("failed to record status update", zap.Error(herr))
			}
		}
		if opts.OnOrderUpdate != nil {
			opts.OnOrderUpdate(info, attempt)
		}
	})
	if err != nil {
		return result, err
	}
	result.Tracking = tracking
	return result, nil
}

// resolveFeeToken overlays on-chain mint facts onto the quoted source
// token and checks whether the sponsor's receiving account demands a memo.
func (e *Executor) resolveFeeToken(ctx context.Context, token types.Token) (types.Token, error) {
	const op = "swap.resolveFeeToken"

	mint, err := solana.PublicKeyFromBase58(token.Address)
	if err != nil {
		return types.Token{}, types.E(types.CodeInvalidInput, op,
			fmt.Errorf("invalid source token mint %q: %w", token.Address, err))
	}
	meta, err := e.deps.Inspector.Inspect(ctx, mint)
	if err != nil {
		return types.Token{}, types.E(types.CodeNetwork, op, err)
	}
	token.Decimals = meta.Decimals
	token.TokenProgram = meta.Program.String()
	token.TransferFee = meta.TransferFee

	sponsorATA, err := soltoken.AssociatedTokenAddress(e.deps.FeePayer, mint, meta.Program)
	if err != nil {
		return types.Token{}, types.E(types.CodeInternal, op, err)
	}
	requiresMemo, err := e.deps.Inspector.RequiresIncomingMemo(ctx, sponsorATA)
	if err != nil {
		e.logger.Debug("memo requirement lookup failed, assuming none", zap.Error(err))
	} else if requiresMemo {
		token.RequiresMemo = true
	}
	return token, nil
}

// reimbursement prefers the venue's own gas-token figure and falls back to
// an oracle conversion with the volatility buffer.
func (e *Executor) reimbursement(ctx context.Context, q *types.Quote, feeToken types.Token, gasLamports uint64) (*big.Int, error) {
	const op = "swap.reimbursement"

	if q.Fees.GasTokenAmount != nil && q.Fees.GasTokenAmount.Sign() > 0 {
		return q.Fees.GasTokenAmount, nil
	}
	if e.deps.Oracle == nil {
		return nil, types.E(types.CodeInvalidInput, op, txassembly.ErrMissingGasCost)
	}
	amount, err := e.deps.Oracle.TokenAmountForNative(ctx, gasLamports, feeToken)
	if err != nil {
		return nil, err
	}
	buffered, err := feecalc.ReimbursementAmount(amount, e.cfg.BufferBps, feeToken.Decimals)
	if err != nil {
		return nil, types.E(types.CodeInternal, op, err)
	}
	return buffered, nil
}

// sponsorNeedsATA reports whether the sponsor's fee-token account is
// missing and must be created in the same transaction.
func (e *Executor) sponsorNeedsATA(ctx context.Context, feeToken types.Token) (bool, error) {
	mint, err := solana.PublicKeyFromBase58(feeToken.Address)
	if err != nil {
		return false, err
	}
	program, err := soltoken.ProgramFor(feeToken)
	if err != nil {
		return false, err
	}
	ata, err := soltoken.AssociatedTokenAddress(e.deps.FeePayer, mint, program)
	if err != nil {
		return false, err
	}
	exists, err := e.deps.Inspector.AccountExists(ctx, ata)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// notifyVenue reports the deposit transaction hash when the venue wants
// it. Best effort: the money has already moved.
func (e *Executor) notifyVenue(ctx context.Context, q *types.Quote, sig solana.Signature) {
	notifier, ok := e.deps.Venue.(DepositNotifier)
	if !ok || q.DepositAddress == "" {
		return
	}
	if err := notifier.SubmitDepositTx(ctx, q.DepositAddress, sig.String()); err != nil {
		e.logger.Warn("failed to report deposit transaction to venue",
			zap.String("order_id", q.ID), zap.Error(err))
	}
}

func (e *Executor) recordSubmission(ctx context.Context, q *types.Quote, reimbursement *big.Int, gasLamports uint64, sig solana.Signature, recipient string) {
	if e.deps.History == nil {
		return
	}
	now := time.Now().UTC()
	rec := &history.Record{
		OrderID:        q.ID,
		Status:         types.StatusPending,
		SrcChainID:     q.SourceToken.ChainID,
		DstChainID:     q.DestToken.ChainID,
		SrcToken:       q.SourceToken.Address,
		DstToken:       q.DestToken.Address,
		SrcSymbol:      q.SourceToken.Symbol,
		DstSymbol:      q.DestToken.Symbol,
		AmountIn:       q.AmountIn.String(),
		AmountOut:      q.AmountOut.String(),
		FeeTokenAmount: reimbursement.String(),
		GasLamports:    gasLamports,
		DepositAddress: q.DepositAddress,
		SrcTxHash:      sig.String(),
		Recipient:      recipient,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.deps.History.Upsert(ctx, rec); err != nil {
		e.logger.Warn("failed to record swap", zap.String("order_id", q.ID), zap.Error(err))
	}
}
