// Package soltoken builds the raw SPL token, memo and associated-token
// instructions the pipeline needs, for both the legacy token program and
// token-2022. Layouts follow the on-chain instruction encodings.
package soltoken

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"gasless-swap/pkg/hexutil"
	"gasless-swap/pkg/types"
)

var (
	// Token2022ProgramID is the token extensions program.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	// MemoProgramID is the v2 memo program.
	MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// transferCheckedIndex is the SPL token TransferChecked instruction tag,
// shared by both token programs.
const transferCheckedIndex = 12

// createIdempotentIndex is the associated-token-account CreateIdempotent tag.
const createIdempotentIndex = 1

// ProgramFor resolves a token's owning program, defaulting to the legacy
// token program when the token does not name one.
func ProgramFor(t types.Token) (solana.PublicKey, error) {
	if t.TokenProgram == "" {
		return solana.TokenProgramID, nil
	}
	pk, err := solana.PublicKeyFromBase58(t.TokenProgram)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid token program %q: %w", t.TokenProgram, err)
	}
	return pk, nil
}

// AssociatedTokenAddress derives the ATA of owner for mint under the given
// token program. The program is part of the seeds, so legacy and
// token-2022 mints derive different addresses.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return addr, nil
}

// NewTransferCheckedInstruction moves amount of mint from source to
// destination, checked against the mint's decimals. Works for both token
// programs; token-2022 deducts its transfer fee from amount in flight.
func NewTransferCheckedInstruction(tokenProgram, source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = transferCheckedIndex
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}
	return solana.NewInstruction(tokenProgram, metas, data)
}

// NewMemoInstruction attaches a UTF-8 memo signed by signer.
func NewMemoInstruction(text string, signer solana.PublicKey) solana.Instruction {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(signer, false, true),
	}
	return solana.NewInstruction(MemoProgramID, metas, []byte(text))
}

// NewCreateATAIdempotentInstruction creates owner's ATA for mint if it does
// not exist yet, funded by payer. Safe to include unconditionally.
func NewCreateATAIdempotentInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(tokenProgram, false, false),
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, metas, []byte{createIdempotentIndex}), nil
}

// Descriptor converts a built instruction into the chain-agnostic
// descriptor form used in transaction payloads and prepared sets.
func Descriptor(ix solana.Instruction) (types.InstructionDescriptor, error) {
	data, err := ix.Data()
	if err != nil {
		return types.InstructionDescriptor{}, fmt.Errorf("failed to encode instruction data: %w", err)
	}
	metas := ix.Accounts()
	accounts := make([]types.InstructionAccount, len(metas))
	for i, m := range metas {
		accounts[i] = types.InstructionAccount{
			Address:  m.PublicKey.String(),
			Signer:   m.IsSigner,
			Writable: m.IsWritable,
		}
	}
	return types.InstructionDescriptor{
		ProgramID: ix.ProgramID().String(),
		Accounts:  accounts,
		DataHex:   hexutil.Encode(data),
	}, nil
}
