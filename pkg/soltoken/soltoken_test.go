package soltoken

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gasless-swap/pkg/types"
)

var (
	testOwner = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testMint  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func TestProgramFor(t *testing.T) {
	legacy, err := ProgramFor(types.Token{Symbol: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, legacy, "tokens default to the legacy program")

	extended, err := ProgramFor(types.Token{Symbol: "TAXED", TokenProgram: Token2022ProgramID.String()})
	require.NoError(t, err)
	assert.Equal(t, Token2022ProgramID, extended)

	_, err = ProgramFor(types.Token{Symbol: "BAD", TokenProgram: "l0OI"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token program")
}

func TestAssociatedTokenAddress(t *testing.T) {
	legacy, err := AssociatedTokenAddress(testOwner, testMint, solana.TokenProgramID)
	require.NoError(t, err)

	// the legacy derivation must agree with the SDK's own helper
	want, _, err := solana.FindAssociatedTokenAddress(testOwner, testMint)
	require.NoError(t, err)
	assert.Equal(t, want, legacy)

	// the token program participates in the seeds
	extended, err := AssociatedTokenAddress(testOwner, testMint, Token2022ProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, legacy, extended)

	again, err := AssociatedTokenAddress(testOwner, testMint, Token2022ProgramID)
	require.NoError(t, err)
	assert.Equal(t, extended, again, "derivation is deterministic")
}

func TestNewTransferCheckedInstruction(t *testing.T) {
	source := solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	destination := solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")

	ix := NewTransferCheckedInstruction(solana.TokenProgramID, source, testMint, destination, testOwner, 1_500_000, 6)
	assert.Equal(t, solana.TokenProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	// tag 12, little-endian amount, decimals
	assert.Equal(t, []byte{0x0c, 0x60, 0xe3, 0x16, 0, 0, 0, 0, 0, 0x06}, data)

	metas := ix.Accounts()
	require.Len(t, metas, 4)
	assert.Equal(t, source, metas[0].PublicKey)
	assert.True(t, metas[0].IsWritable)
	assert.False(t, metas[0].IsSigner)
	assert.Equal(t, testMint, metas[1].PublicKey)
	assert.False(t, metas[1].IsWritable)
	assert.Equal(t, destination, metas[2].PublicKey)
	assert.True(t, metas[2].IsWritable)
	assert.Equal(t, testOwner, metas[3].PublicKey)
	assert.True(t, metas[3].IsSigner)
	assert.False(t, metas[3].IsWritable)
}

func TestNewMemoInstruction(t *testing.T) {
	ix := NewMemoInstruction("fee payment for order ord-123", testOwner)
	assert.Equal(t, MemoProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("fee payment for order ord-123"), data)

	metas := ix.Accounts()
	require.Len(t, metas, 1)
	assert.Equal(t, testOwner, metas[0].PublicKey)
	assert.True(t, metas[0].IsSigner)
}

func TestNewCreateATAIdempotentInstruction(t *testing.T) {
	payer := solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")

	ix, err := NewCreateATAIdempotentInstruction(payer, testOwner, testMint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, data, "create-idempotent discriminator")

	ata, err := AssociatedTokenAddress(testOwner, testMint, solana.TokenProgramID)
	require.NoError(t, err)

	metas := ix.Accounts()
	require.Len(t, metas, 6)
	assert.Equal(t, payer, metas[0].PublicKey)
	assert.True(t, metas[0].IsSigner)
	assert.True(t, metas[0].IsWritable)
	assert.Equal(t, ata, metas[1].PublicKey)
	assert.True(t, metas[1].IsWritable)
	assert.Equal(t, testOwner, metas[2].PublicKey)
	assert.Equal(t, testMint, metas[3].PublicKey)
	assert.Equal(t, solana.SystemProgramID, metas[4].PublicKey)
	assert.Equal(t, solana.TokenProgramID, metas[5].PublicKey)
}

func TestDescriptor(t *testing.T) {
	ix := NewTransferCheckedInstruction(Token2022ProgramID, testOwner, testMint, testOwner, testOwner, 42, 9)

	d, err := Descriptor(ix)
	require.NoError(t, err)
	assert.Equal(t, Token2022ProgramID.String(), d.ProgramID)
	assert.Equal(t, "0c2a0000000000000009", d.DataHex)
	require.Len(t, d.Accounts, 4)
	assert.Equal(t, testOwner.String(), d.Accounts[0].Address)
	assert.True(t, d.Accounts[0].Writable)
	assert.False(t, d.Accounts[0].Signer)
	assert.True(t, d.Accounts[3].Signer)
}
