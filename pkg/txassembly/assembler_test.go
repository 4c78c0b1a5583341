package txassembly

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gasless-swap/pkg/hexutil"
	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/types"
)

var (
	testUser      = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testSponsor   = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	venueProgram  = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	testBlockhash = solana.MustHashFromBase58("EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N")
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func usdc() types.Token {
	return types.Token{
		AssetID:  "usdc-solana",
		Symbol:   "USDC",
		ChainID:  "solana",
		Address:  usdcMint,
		Decimals: 6,
	}
}

func venueIx() types.InstructionDescriptor {
	return types.InstructionDescriptor{
		ProgramID: venueProgram.String(),
		Accounts: []types.InstructionAccount{
			{Address: testUser.String(), Signer: true, Writable: true},
			{Address: usdcMint, Writable: true},
		},
		DataHex: "e517cb977ae3ad2a01",
	}
}

func venueIxs(n int) []types.InstructionDescriptor {
	out := make([]types.InstructionDescriptor, n)
	for i := range out {
		ix := venueIx()
		ix.DataHex = fmt.Sprintf("%s%02x", ix.DataHex, i)
		out[i] = ix
	}
	return out
}

func testAssemblyParams() Params {
	return Params{
		Quote: &types.Quote{
			ID: "ord-123",
			Payload: types.TransactionPayload{
				Kind:         types.PayloadInstructionList,
				ChainType:    types.ChainSolana,
				Instructions: []types.InstructionDescriptor{venueIx()},
			},
		},
		UserAddress:   testUser,
		FeePayer:      testSponsor,
		FeeToken:      usdc(),
		GasLamports:   55_000,
		Reimbursement: big.NewInt(5_500_000),
	}
}

func programIDs(set *types.PreparedInstructionSet) []string {
	out := make([]string, len(set.Instructions))
	for i, d := range set.Instructions {
		out[i] = d.ProgramID
	}
	return out
}

// syntheticAccount derives a distinct valid address per index.
func syntheticAccount(n int) string {
	b := make([]byte, solana.PublicKeyLength)
	b[0] = 0x5a
	b[30] = byte(n >> 8)
	b[31] = byte(n)
	return solana.PublicKeyFromBytes(b).String()
}

func TestAssembleOrdersPaymentBeforeVenueInstructions(t *testing.T) {
	a := New(zap.NewNop())

	set, err := a.Assemble(testAssemblyParams())
	require.NoError(t, err)

	assert.Equal(t, types.ChainSolana, set.ChainType)
	assert.Equal(t, testSponsor.String(), set.FeePayer)
	require.Len(t, set.Instructions, 3)
	assert.Equal(t, computebudget.ProgramID.String(), set.Instructions[0].ProgramID)

	payment := set.Instructions[1]
	assert.Equal(t, solana.TokenProgramID.String(), payment.ProgramID)
	data, err := hexutil.Decode(payment.DataHex)
	require.NoError(t, err)
	require.Len(t, data, 10)
	assert.EqualValues(t, 12, data[0])
	assert.Equal(t, uint64(5_500_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.EqualValues(t, 6, data[9])

	mint := solana.MustPublicKeyFromBase58(usdcMint)
	userATA, err := soltoken.AssociatedTokenAddress(testUser, mint, solana.TokenProgramID)
	require.NoError(t, err)
	sponsorATA, err := soltoken.AssociatedTokenAddress(testSponsor, mint, solana.TokenProgramID)
	require.NoError(t, err)
	require.Len(t, payment.Accounts, 4)
	assert.Equal(t, userATA.String(), payment.Accounts[0].Address)
	assert.True(t, payment.Accounts[0].Writable)
	assert.False(t, payment.Accounts[0].Signer)
	assert.Equal(t, usdcMint, payment.Accounts[1].Address)
	assert.Equal(t, sponsorATA.String(), payment.Accounts[2].Address)
	assert.Equal(t, testUser.String(), payment.Accounts[3].Address)
	assert.True(t, payment.Accounts[3].Signer)

	assert.Equal(t, venueIx(), set.Instructions[2])
}

func TestAssembleReplacesVenueComputeBudget(t *testing.T) {
	a := New(zap.NewNop())
	p := testAssemblyParams()
	p.Quote.Payload.Instructions = []types.InstructionDescriptor{
		{ProgramID: computebudget.ProgramID.String(), DataHex: "0240420f00"},
		venueIx(),
		// Stripped before data validation, so an empty payload is fine here.
		{ProgramID: computebudget.ProgramID.String()},
	}

	set, err := a.Assemble(p)
	require.NoError(t, err)

	require.Len(t, set.Instructions, 3)
	assert.Equal(t, computebudget.ProgramID.String(), set.Instructions[0].ProgramID)
	assert.Equal(t, venueIx(), set.Instructions[2])
	for _, d := range set.Instructions[1:] {
		assert.NotEqual(t, computebudget.ProgramID.String(), d.ProgramID)
	}
}

func TestAssembleGrossesUpPaymentForTransferFees(t *testing.T) {
	tests := []struct {
		name      string
		fee       *types.TransferFeeConfig
		wantGross uint64
	}{
		{
			name:      "percentage fee below cap",
			fee:       &types.TransferFeeConfig{BasisPoints: 100, MaximumFee: big.NewInt(1_000_000_000)},
			wantGross: 5_555_556,
		},
		{
			name:      "maximum fee caps the gross-up",
			fee:       &types.TransferFeeConfig{BasisPoints: 5000, MaximumFee: big.NewInt(1_000)},
			wantGross: 5_501_000,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(zap.NewNop())
			p := testAssemblyParams()
			p.FeeToken.TokenProgram = soltoken.Token2022ProgramID.String()
			p.FeeToken.TransferFee = tc.fee

			set, err := a.Assemble(p)
			require.NoError(t, err)

			payment := set.Instructions[1]
			assert.Equal(t, soltoken.Token2022ProgramID.String(), payment.ProgramID)
			data, err := hexutil.Decode(payment.DataHex)
			require.NoError(t, err)
			require.Len(t, data, 10)
			assert.Equal(t, tc.wantGross, binary.LittleEndian.Uint64(data[1:9]))
		})
	}
}

func TestAssembleMemoFollowsTokenRequirement(t *testing.T) {
	a := New(zap.NewNop())

	t.Run("omitted by default", func(t *testing.T) {
		set, err := a.Assemble(testAssemblyParams())
		require.NoError(t, err)
		assert.NotContains(t, programIDs(set), soltoken.MemoProgramID.String())
	})

	t.Run("default text names the order", func(t *testing.T) {
		p := testAssemblyParams()
		p.FeeToken.RequiresMemo = true

		set, err := a.Assemble(p)
		require.NoError(t, err)
		require.Len(t, set.Instructions, 4)

		memo := set.Instructions[1]
		require.Equal(t, soltoken.MemoProgramID.String(), memo.ProgramID)
		data, err := hexutil.Decode(memo.DataHex)
		require.NoError(t, err)
		assert.Equal(t, "fee payment for order ord-123", string(data))
		require.Len(t, memo.Accounts, 1)
		assert.Equal(t, testUser.String(), memo.Accounts[0].Address)
		assert.True(t, memo.Accounts[0].Signer)
	})

	t.Run("caller text wins", func(t *testing.T) {
		p := testAssemblyParams()
		p.FeeToken.RequiresMemo = true
		p.Memo = "invoice 42"

		set, err := a.Assemble(p)
		require.NoError(t, err)

		data, err := hexutil.Decode(set.Instructions[1].DataHex)
		require.NoError(t, err)
		assert.Equal(t, "invoice 42", string(data))
	})
}

func TestAssembleCreateFeeATAPrecedesPayment(t *testing.T) {
	a := New(zap.NewNop())
	p := testAssemblyParams()
	p.CreateFeeATA = true
	p.FeeToken.RequiresMemo = true

	set, err := a.Assemble(p)
	require.NoError(t, err)
	require.Len(t, set.Instructions, 5)

	want := []string{
		computebudget.ProgramID.String(),
		solana.SPLAssociatedTokenAccountProgramID.String(),
		soltoken.MemoProgramID.String(),
		solana.TokenProgramID.String(),
		venueProgram.String(),
	}
	assert.Equal(t, want, programIDs(set))

	create := set.Instructions[1]
	assert.Equal(t, "01", create.DataHex)
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	sponsorATA, err := soltoken.AssociatedTokenAddress(testSponsor, mint, solana.TokenProgramID)
	require.NoError(t, err)
	require.Len(t, create.Accounts, 6)
	assert.Equal(t, testSponsor.String(), create.Accounts[0].Address)
	assert.True(t, create.Accounts[0].Signer)
	assert.Equal(t, sponsorATA.String(), create.Accounts[1].Address)
	assert.Equal(t, testSponsor.String(), create.Accounts[2].Address)
}

func TestAssembleSizesComputeBudget(t *testing.T) {
	transferFee := &types.TransferFeeConfig{BasisPoints: 100, MaximumFee: big.NewInt(1_000_000_000)}
	tests := []struct {
		name     string
		venueIxs int
		mutate   func(*Params)
		want     uint32
	}{
		{name: "single swap instruction", venueIxs: 1, want: 360_000},
		{
			name:     "memo adds its increment",
			venueIxs: 1,
			mutate:   func(p *Params) { p.FeeToken.RequiresMemo = true },
			want:     370_000,
		},
		{
			name:     "transfer fee extraction",
			venueIxs: 1,
			mutate:   func(p *Params) { p.FeeToken.TransferFee = transferFee },
			want:     390_000,
		},
		{
			name:     "ata creation",
			venueIxs: 1,
			mutate:   func(p *Params) { p.CreateFeeATA = true },
			want:     400_000,
		},
		{
			name:     "all features",
			venueIxs: 2,
			mutate: func(p *Params) {
				p.FeeToken.RequiresMemo = true
				p.FeeToken.TransferFee = transferFee
				p.CreateFeeATA = true
			},
			want: 680_000,
		},
		{name: "clamped to the network ceiling", venueIxs: 6, want: 1_400_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(zap.NewNop())
			p := testAssemblyParams()
			p.Quote.Payload.Instructions = venueIxs(tc.venueIxs)
			if tc.mutate != nil {
				tc.mutate(&p)
			}

			set, err := a.Assemble(p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, set.ComputeUnits)

			limit, err := computebudget.NewSetComputeUnitLimitInstruction(tc.want).ValidateAndBuild()
			require.NoError(t, err)
			wantIx, err := soltoken.Descriptor(limit)
			require.NoError(t, err)
			assert.Equal(t, wantIx, set.Instructions[0])
		})
	}
}

func TestAssemblePriorityFeeAddsUnitPrice(t *testing.T) {
	a := New(zap.NewNop())
	p := testAssemblyParams()
	p.PriorityFeeMicroLamports = 2_500

	set, err := a.Assemble(p)
	require.NoError(t, err)
	require.Len(t, set.Instructions, 4)
	assert.Equal(t, computebudget.ProgramID.String(), set.Instructions[0].ProgramID)

	price, err := computebudget.NewSetComputeUnitPriceInstruction(2_500).ValidateAndBuild()
	require.NoError(t, err)
	wantIx, err := soltoken.Descriptor(price)
	require.NoError(t, err)
	assert.Equal(t, wantIx, set.Instructions[1])
}

func TestAssembleDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing quote",
			mutate:  func(p *Params) { p.Quote = nil },
			wantMsg: "quote is required",
		},
		{
			name:    "zero gas lamports",
			mutate:  func(p *Params) { p.GasLamports = 0 },
			wantErr: ErrMissingGasCost,
		},
		{
			name:    "missing reimbursement",
			mutate:  func(p *Params) { p.Reimbursement = nil },
			wantErr: ErrMissingGasCost,
		},
		{
			name:    "non-positive reimbursement",
			mutate:  func(p *Params) { p.Reimbursement = big.NewInt(0) },
			wantErr: ErrMissingGasCost,
		},
		{
			name:    "evm payload",
			mutate:  func(p *Params) { p.Quote.Payload.ChainType = types.ChainEVM },
			wantErr: ErrUnsupportedChain,
		},
		{
			name:    "empty instruction list",
			mutate:  func(p *Params) { p.Quote.Payload.Instructions = nil },
			wantErr: ErrEmptyInstructionSet,
		},
		{
			name: "only compute budget instructions",
			mutate: func(p *Params) {
				p.Quote.Payload.Instructions = []types.InstructionDescriptor{
					{ProgramID: computebudget.ProgramID.String(), DataHex: "0240420f00"},
				}
			},
			wantErr: ErrEmptyInstructionSet,
		},
		{
			name: "instruction without data",
			mutate: func(p *Params) {
				ix := venueIx()
				ix.DataHex = ""
				p.Quote.Payload.Instructions = []types.InstructionDescriptor{ix}
			},
			wantErr: ErrMissingInstructionData,
		},
		{
			name: "instruction with odd-length hex",
			mutate: func(p *Params) {
				ix := venueIx()
				ix.DataHex = "abc"
				p.Quote.Payload.Instructions = []types.InstructionDescriptor{ix}
			},
			wantErr: ErrMalformedInstruction,
		},
		{
			name: "instruction with bogus program",
			mutate: func(p *Params) {
				ix := venueIx()
				ix.ProgramID = "l0OI"
				p.Quote.Payload.Instructions = []types.InstructionDescriptor{ix}
			},
			wantErr: ErrMalformedInstruction,
		},
		{
			name: "instruction with bogus account",
			mutate: func(p *Params) {
				ix := venueIx()
				ix.Accounts[0].Address = "l0OI"
				p.Quote.Payload.Instructions = []types.InstructionDescriptor{ix}
			},
			wantErr: ErrMalformedInstruction,
		},
		{
			name: "serialized payload that is not base64",
			mutate: func(p *Params) {
				p.Quote.Payload = types.TransactionPayload{
					Kind:         types.PayloadSerializedTx,
					ChainType:    types.ChainSolana,
					SerializedTx: "!!not-base64!!",
				}
			},
			wantErr: ErrMalformedInstruction,
		},
		{
			name: "serialized payload that is not a transaction",
			mutate: func(p *Params) {
				p.Quote.Payload = types.TransactionPayload{
					Kind:         types.PayloadSerializedTx,
					ChainType:    types.ChainSolana,
					SerializedTx: base64.StdEncoding.EncodeToString([]byte("junk")),
				}
			},
			wantErr: ErrMalformedInstruction,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(zap.NewNop())
			p := testAssemblyParams()
			tc.mutate(&p)

			set, err := a.Assemble(p)
			require.Error(t, err)
			assert.Nil(t, set)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantMsg != "" {
				assert.ErrorContains(t, err, tc.wantMsg)
			}
			assert.Equal(t, types.CodeInvalidInput, types.CodeOf(err))
		})
	}
}

func TestAssembleDecompilesSerializedPayload(t *testing.T) {
	poolAuthority := solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	swapData := []byte{0xe5, 0x17, 0xcb, 0x97, 0x7a, 0xe3, 0xad, 0x2a}
	venueSwap := solana.NewInstruction(venueProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(testUser, true, true),
		solana.NewAccountMeta(poolAuthority, true, false),
		solana.NewAccountMeta(solana.MustPublicKeyFromBase58(usdcMint), false, false),
	}, swapData)
	venueBudget, err := computebudget.NewSetComputeUnitLimitInstruction(600_000).ValidateAndBuild()
	require.NoError(t, err)

	venueTx, err := solana.NewTransaction(
		[]solana.Instruction{venueBudget, venueSwap},
		testBlockhash,
		solana.TransactionPayer(testUser),
	)
	require.NoError(t, err)
	raw, err := venueTx.MarshalBinary()
	require.NoError(t, err)

	a := New(zap.NewNop())
	p := testAssemblyParams()
	p.Quote.Payload = types.TransactionPayload{
		Kind:         types.PayloadSerializedTx,
		ChainType:    types.ChainSolana,
		SerializedTx: base64.StdEncoding.EncodeToString(raw),
	}

	set, err := a.Assemble(p)
	require.NoError(t, err)

	// The venue's own budget instruction is dropped; ours leads.
	require.Len(t, set.Instructions, 3)
	assert.Equal(t, computebudget.ProgramID.String(), set.Instructions[0].ProgramID)

	swap := set.Instructions[2]
	assert.Equal(t, venueProgram.String(), swap.ProgramID)
	assert.Equal(t, hexutil.Encode(swapData), swap.DataHex)
	require.Len(t, swap.Accounts, 3)
	assert.Equal(t, testUser.String(), swap.Accounts[0].Address)
	assert.True(t, swap.Accounts[0].Signer)
	assert.True(t, swap.Accounts[0].Writable)
	assert.Equal(t, poolAuthority.String(), swap.Accounts[1].Address)
	assert.False(t, swap.Accounts[1].Signer)
	assert.True(t, swap.Accounts[1].Writable)
	assert.Equal(t, usdcMint, swap.Accounts[2].Address)
	assert.False(t, swap.Accounts[2].Writable)
}

func TestBuildTransactionBindsSponsorAsFeePayer(t *testing.T) {
	a := New(nil)
	set, err := a.Assemble(testAssemblyParams())
	require.NoError(t, err)

	tx, err := a.BuildTransaction(set, testBlockhash)
	require.NoError(t, err)

	require.NotEmpty(t, tx.Message.AccountKeys)
	assert.Equal(t, testSponsor, tx.Message.AccountKeys[0])
	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash)
	assert.EqualValues(t, 2, tx.Message.Header.NumRequiredSignatures)
	assert.True(t, tx.Message.IsSigner(testUser))
	require.Len(t, tx.Message.Instructions, len(set.Instructions))

	program, err := tx.Message.ResolveProgramIDIndex(tx.Message.Instructions[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, computebudget.ProgramID, program)
}

func TestBuildTransactionRejectsOversizedTransactions(t *testing.T) {
	a := New(zap.NewNop())
	p := testAssemblyParams()
	ixs := make([]types.InstructionDescriptor, 15)
	for i := range ixs {
		ixs[i] = types.InstructionDescriptor{
			ProgramID: venueProgram.String(),
			Accounts: []types.InstructionAccount{
				{Address: syntheticAccount(3 * i), Writable: true},
				{Address: syntheticAccount(3*i + 1), Writable: true},
				{Address: syntheticAccount(3*i + 2)},
			},
			DataHex: "0102030405060708",
		}
	}
	p.Quote.Payload.Instructions = ixs

	set, err := a.Assemble(p)
	require.NoError(t, err)

	tx, err := a.BuildTransaction(set, testBlockhash)
	assert.Nil(t, tx)
	assert.ErrorIs(t, err, ErrTransactionTooLarge)
	assert.Equal(t, types.CodeInvalidInput, types.CodeOf(err))
}

func TestBuildTransactionRejectsInvalidSets(t *testing.T) {
	valid := func(t *testing.T) *types.PreparedInstructionSet {
		t.Helper()
		set, err := New(zap.NewNop()).Assemble(testAssemblyParams())
		require.NoError(t, err)
		return set
	}

	tests := []struct {
		name    string
		set     func(t *testing.T) *types.PreparedInstructionSet
		wantErr error
		wantMsg string
	}{
		{
			name:    "nil set",
			set:     func(t *testing.T) *types.PreparedInstructionSet { return nil },
			wantErr: ErrEmptyInstructionSet,
		},
		{
			name: "no instructions",
			set: func(t *testing.T) *types.PreparedInstructionSet {
				return &types.PreparedInstructionSet{ChainType: types.ChainSolana, FeePayer: testSponsor.String()}
			},
			wantErr: ErrEmptyInstructionSet,
		},
		{
			name: "wrong chain",
			set: func(t *testing.T) *types.PreparedInstructionSet {
				s := valid(t)
				s.ChainType = types.ChainEVM
				return s
			},
			wantErr: ErrUnsupportedChain,
		},
		{
			name: "unparseable fee payer",
			set: func(t *testing.T) *types.PreparedInstructionSet {
				s := valid(t)
				s.FeePayer = "l0OI"
				return s
			},
			wantMsg: "invalid fee payer",
		},
		{
			name: "corrupted instruction data",
			set: func(t *testing.T) *types.PreparedInstructionSet {
				s := valid(t)
				s.Instructions[0].DataHex = "zz"
				return s
			},
			wantErr: ErrMalformedInstruction,
			wantMsg: "instruction 0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(zap.NewNop())

			tx, err := a.BuildTransaction(tc.set(t), testBlockhash)
			require.Error(t, err)
			assert.Nil(t, tx)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantMsg != "" {
				assert.ErrorContains(t, err, tc.wantMsg)
			}
		})
	}
}
