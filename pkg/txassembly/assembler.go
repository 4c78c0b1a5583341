// Package txassembly turns a venue quote into a single unsigned Solana
// transaction: compute budget first, then the sponsor's in-token fee
// payment, then the venue's swap instructions. The fee payment always
// executes before any venue instruction so a sponsor never fronts gas for
// a swap that cannot reimburse it.
package txassembly

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"go.uber.org/zap"

	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/hexutil"
	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/types"
)

// Compute unit model: a fixed base plus per-feature increments, doubled to
// absorb venue route variance, clamped to the network ceiling.
const (
	computeUnitBase       = 50_000
	computeUnitPayment    = 10_000
	computeUnitMemo       = 5_000
	computeUnitFeeExtract = 15_000
	computeUnitATACreate  = 20_000
	computeUnitPerSwapIx  = 120_000
	computeUnitHeadroom   = 2
	maxComputeUnits       = 1_400_000
)

// maxPacketSize is the serialized transaction limit imposed by the
// network's MTU.
const maxPacketSize = 1232

// Assembly diagnostics.
var (
	ErrMissingGasCost         = errors.New("quote lacks a gas reimbursement cost")
	ErrEmptyInstructionSet    = errors.New("venue payload contains no instructions")
	ErrMissingInstructionData = errors.New("venue instruction carries no data")
	ErrMalformedInstruction   = errors.New("venue instruction is malformed")
	ErrUnsupportedChain       = errors.New("payload targets an unsupported chain")
	ErrTransactionTooLarge    = errors.New("serialized transaction exceeds the packet limit")
)

// Params carries everything one assembly attempt needs. Sets are built
// fresh per attempt; callers never reuse one across blockhashes.
type Params struct {
	Quote       *types.Quote
	UserAddress solana.PublicKey
	FeePayer    solana.PublicKey
	// FeeToken is the source token the sponsor is reimbursed in, with its
	// introspected program, decimals and transfer-fee schedule.
	FeeToken types.Token
	// GasLamports is the native cost the sponsor fronts.
	GasLamports uint64
	// Reimbursement is the buffered amount, in fee-token smallest units,
	// the sponsor must net after transfer fees.
	Reimbursement *big.Int
	// Memo overrides the default memo text when the fee token requires one.
	Memo string
	// CreateFeeATA includes an idempotent create of the sponsor's
	// fee-token account.
	CreateFeeATA             bool
	PriorityFeeMicroLamports uint64
}

func (p *Params) validate() error {
	if p.Quote == nil {
		return fmt.Errorf("quote is required")
	}
	if err := p.Quote.Payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInstruction, err)
	}
	if p.Quote.Payload.ChainType != types.ChainSolana {
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, p.Quote.Payload.ChainType)
	}
	if p.UserAddress.IsZero() {
		return fmt.Errorf("user address is required")
	}
	if p.FeePayer.IsZero() {
		return fmt.Errorf("fee payer address is required")
	}
	if p.GasLamports == 0 {
		return fmt.Errorf("%w: gas lamports are unset", ErrMissingGasCost)
	}
	if p.Reimbursement == nil || p.Reimbursement.Sign() <= 0 {
		return fmt.Errorf("%w: reimbursement amount is unset", ErrMissingGasCost)
	}
	if p.FeeToken.Address == "" {
		return fmt.Errorf("fee token has no mint address")
	}
	return nil
}

// Assembler builds prepared instruction sets and compiles them into
// transactions.
type Assembler struct {
	logger *zap.Logger
}

// New returns an assembler.
func New(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger.With(zap.String("module", "txassembly"))}
}

// Assemble orders and validates every instruction of the swap transaction.
func (a *Assembler) Assemble(p Params) (*types.PreparedInstructionSet, error) {
	if err := p.validate(); err != nil {
		return nil, types.E(types.CodeInvalidInput, "txassembly.Assemble", err)
	}

	venueIxs, err := a.venueInstructions(&p.Quote.Payload)
	if err != nil {
		return nil, types.E(types.CodeInvalidInput, "txassembly.Assemble", err)
	}

	payment, err := a.paymentInstruction(&p)
	if err != nil {
		return nil, types.E(types.CodeInvalidInput, "txassembly.Assemble", err)
	}

	var prefix []solana.Instruction
	if p.CreateFeeATA {
		mint := solana.MustPublicKeyFromBase58(p.FeeToken.Address)
		program, perr := soltoken.ProgramFor(p.FeeToken)
		if perr != nil {
			return nil, types.E(types.CodeInvalidInput, "txassembly.Assemble", perr)
		}
		createIx, cerr := soltoken.NewCreateATAIdempotentInstruction(p.FeePayer, p.FeePayer, mint, program)
		if cerr != nil {
			return nil, types.E(types.CodeInternal, "txassembly.Assemble", cerr)
		}
		prefix = append(prefix, createIx)
	}
	if p.FeeToken.RequiresMemo {
		memo := p.Memo
		if memo == "" {
			memo = fmt.Sprintf("fee payment for order %s", p.Quote.ID)
		}
		prefix = append(prefix, soltoken.NewMemoInstruction(memo, p.UserAddress))
	}

	units := a.computeUnits(&p, len(venueIxs), p.CreateFeeATA)
	budget, err := a.budgetInstructions(units, p.PriorityFeeMicroLamports)
	if err != nil {
		return nil, types.E(types.CodeInternal, "txassembly.Assemble", err)
	}

	descriptors := make([]types.InstructionDescriptor, 0, len(budget)+len(prefix)+1+len(venueIxs))
	for _, ix := range append(budget, prefix...) {
		d, derr := soltoken.Descriptor(ix)
		if derr != nil {
			return nil, types.E(types.CodeInternal, "txassembly.Assemble", derr)
		}
		descriptors = append(descriptors, d)
	}
	paymentDescriptor, err := soltoken.Descriptor(payment)
	if err != nil {
		return nil, types.E(types.CodeInternal, "txassembly.Assemble", err)
	}
	descriptors = append(descriptors, paymentDescriptor)
	descriptors = append(descriptors, venueIxs...)

	a.logger.Debug("assembled instruction set",
		zap.String("quote_id", p.Quote.ID),
		zap.Int("venue_instructions", len(venueIxs)),
		zap.Uint32("compute_units", units))

	return &types.PreparedInstructionSet{
		ChainType:    types.ChainSolana,
		FeePayer:     p.FeePayer.String(),
		ComputeUnits: units,
		Instructions: descriptors,
	}, nil
}

// BuildTransaction compiles a prepared set against a fresh blockhash with
// the sponsor as fee payer.
func (a *Assembler) BuildTransaction(set *types.PreparedInstructionSet, blockhash solana.Hash) (*solana.Transaction, error) {
	if set == nil || len(set.Instructions) == 0 {
		return nil, types.E(types.CodeInvalidInput, "txassembly.BuildTransaction", ErrEmptyInstructionSet)
	}
	if set.ChainType != types.ChainSolana {
		return nil, types.E(types.CodeInvalidInput, "txassembly.BuildTransaction",
			fmt.Errorf("%w: %s", ErrUnsupportedChain, set.ChainType))
	}
	feePayer, err := solana.PublicKeyFromBase58(set.FeePayer)
	if err != nil {
		return nil, types.E(types.CodeInvalidInput, "txassembly.BuildTransaction",
			fmt.Errorf("invalid fee payer %q: %w", set.FeePayer, err))
	}

	ixs := make([]solana.Instruction, 0, len(set.Instructions))
	for i, d := range set.Instructions {
		ix, ierr := instructionFromDescriptor(d)
		if ierr != nil {
			return nil, types.E(types.CodeInvalidInput, "txassembly.BuildTransaction",
				fmt.Errorf("instruction %d: %w", i, ierr))
		}
		ixs = append(ixs, ix)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, types.E(types.CodeInternal, "txassembly.BuildTransaction",
			fmt.Errorf("failed to build transaction: %w", err))
	}

	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, types.E(types.CodeInternal, "txassembly.BuildTransaction", err)
	}
	size := 1 + 64*int(tx.Message.Header.NumRequiredSignatures) + len(msgBytes)
	if size > maxPacketSize {
		return nil, types.E(types.CodeInvalidInput, "txassembly.BuildTransaction",
			fmt.Errorf("%w: %d bytes", ErrTransactionTooLarge, size))
	}
	return tx, nil
}

// venueInstructions extracts the venue's swap instructions from either
// payload variant, strips venue compute-budget instructions, and validates
// what remains.
func (a *Assembler) venueInstructions(payload *types.TransactionPayload) ([]types.InstructionDescriptor, error) {
	var raw []types.InstructionDescriptor
	switch payload.Kind {
	case types.PayloadInstructionList:
		raw = payload.Instructions
	case types.PayloadSerializedTx:
		decoded, err := decompileSerialized(payload.SerializedTx)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}
	if len(raw) == 0 {
		return nil, ErrEmptyInstructionSet
	}

	budgetProgram := computebudget.ProgramID.String()
	kept := make([]types.InstructionDescriptor, 0, len(raw))
	stripped := 0
	for i, d := range raw {
		if d.ProgramID == budgetProgram {
			stripped++
			continue
		}
		if _, err := solana.PublicKeyFromBase58(d.ProgramID); err != nil {
			return nil, fmt.Errorf("%w: instruction %d has invalid program id %q", ErrMalformedInstruction, i, d.ProgramID)
		}
		if d.DataHex == "" {
			return nil, fmt.Errorf("%w: instruction %d", ErrMissingInstructionData, i)
		}
		if _, err := hexutil.Decode(d.DataHex); err != nil {
			return nil, fmt.Errorf("%w: instruction %d: %v", ErrMalformedInstruction, i, err)
		}
		for _, acc := range d.Accounts {
			if _, err := solana.PublicKeyFromBase58(acc.Address); err != nil {
				return nil, fmt.Errorf("%w: instruction %d has invalid account %q", ErrMalformedInstruction, i, acc.Address)
			}
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return nil, ErrEmptyInstructionSet
	}
	if stripped > 0 {
		a.logger.Debug("stripped venue compute budget instructions", zap.Int("count", stripped))
	}
	return kept, nil
}

// paymentInstruction builds the in-token reimbursement transfer, grossed
// up so the sponsor nets the buffered amount after transfer fees.
func (a *Assembler) paymentInstruction(p *Params) (solana.Instruction, error) {
	gross, err := feecalc.GrossAmount(p.Reimbursement, p.FeeToken.TransferFee)
	if err != nil {
		return nil, err
	}
	check, err := feecalc.ValidateTransfer(gross, p.Reimbursement, p.FeeToken.TransferFee)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, fmt.Errorf("fee payment does not survive transfer fees: %s", check.Reason)
	}
	if !gross.IsUint64() {
		return nil, fmt.Errorf("fee payment %s exceeds the transferable range", gross)
	}

	mint, err := solana.PublicKeyFromBase58(p.FeeToken.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid fee token mint %q: %w", p.FeeToken.Address, err)
	}
	program, err := soltoken.ProgramFor(p.FeeToken)
	if err != nil {
		return nil, err
	}
	userATA, err := soltoken.AssociatedTokenAddress(p.UserAddress, mint, program)
	if err != nil {
		return nil, err
	}
	sponsorATA, err := soltoken.AssociatedTokenAddress(p.FeePayer, mint, program)
	if err != nil {
		return nil, err
	}
	return soltoken.NewTransferCheckedInstruction(
		program, userATA, mint, sponsorATA, p.UserAddress, gross.Uint64(), p.FeeToken.Decimals), nil
}

// budgetInstructions emits the compute unit limit and, when a priority fee
// is configured, the unit price.
func (a *Assembler) budgetInstructions(units uint32, priorityFee uint64) ([]solana.Instruction, error) {
	limitIx, err := computebudget.NewSetComputeUnitLimitInstruction(units).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit limit: %w", err)
	}
	out := []solana.Instruction{limitIx}
	if priorityFee > 0 {
		priceIx, err := computebudget.NewSetComputeUnitPriceInstruction(priorityFee).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit price: %w", err)
		}
		out = append(out, priceIx)
	}
	return out, nil
}

// computeUnits sizes the budget from the features present, then doubles it.
func (a *Assembler) computeUnits(p *Params, venueIxCount int, createATA bool) uint32 {
	units := uint64(computeUnitBase + computeUnitPayment)
	units += uint64(venueIxCount) * computeUnitPerSwapIx
	if p.FeeToken.RequiresMemo {
		units += computeUnitMemo
	}
	if p.FeeToken.TransferFee != nil {
		units += computeUnitFeeExtract
	}
	if createATA {
		units += computeUnitATACreate
	}
	units *= computeUnitHeadroom
	if units > maxComputeUnits {
		units = maxComputeUnits
	}
	return uint32(units)
}

// decompileSerialized unpacks a base64 transaction into descriptors,
// recovering each account's signer and writable flags from the message
// header.
func decompileSerialized(serialized string) ([]types.InstructionDescriptor, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not valid base64: %v", ErrMalformedInstruction, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not a valid transaction: %v", ErrMalformedInstruction, err)
	}

	msg := tx.Message
	numSigners := int(msg.Header.NumRequiredSignatures)
	numROSigned := int(msg.Header.NumReadonlySignedAccounts)
	numROUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)
	total := len(msg.AccountKeys)

	out := make([]types.InstructionDescriptor, 0, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= total {
			return nil, fmt.Errorf("%w: instruction %d program index out of range", ErrMalformedInstruction, i)
		}
		accounts := make([]types.InstructionAccount, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			k := int(idx)
			if k >= total {
				return nil, fmt.Errorf("%w: instruction %d account index out of range", ErrMalformedInstruction, i)
			}
			writable := k < numSigners-numROSigned || (k >= numSigners && k < total-numROUnsigned)
			accounts[j] = types.InstructionAccount{
				Address:  msg.AccountKeys[k].String(),
				Signer:   k < numSigners,
				Writable: writable,
			}
		}
		out = append(out, types.InstructionDescriptor{
			ProgramID: msg.AccountKeys[ci.ProgramIDIndex].String(),
			Accounts:  accounts,
			DataHex:   hexutil.Encode(ci.Data),
		})
	}
	return out, nil
}

// instructionFromDescriptor realizes a descriptor as a Solana instruction.
func instructionFromDescriptor(d types.InstructionDescriptor) (solana.Instruction, error) {
	program, err := solana.PublicKeyFromBase58(d.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid program id %q", ErrMalformedInstruction, d.ProgramID)
	}
	data, err := hexutil.Decode(d.DataHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInstruction, err)
	}
	metas := make(solana.AccountMetaSlice, 0, len(d.Accounts))
	for _, acc := range d.Accounts {
		pk, err := solana.PublicKeyFromBase58(acc.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid account %q", ErrMalformedInstruction, acc.Address)
		}
		metas = append(metas, solana.NewAccountMeta(pk, acc.Writable, acc.Signer))
	}
	return solana.NewInstruction(program, metas, data), nil
}
