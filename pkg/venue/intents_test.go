package venue

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/types"
)

func newTestIntents(t *testing.T) *IntentsClient {
	t.Helper()
	client, err := NewIntentsClient("test-jwt", zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewIntentsClientRequiresToken(t *testing.T) {
	_, err := NewIntentsClient("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT token")
}

func TestDepositInstructionsExpressTheTransfer(t *testing.T) {
	client := newTestIntents(t)
	req := testOrderRequest()

	descriptors, err := client.depositInstructions(req, testDepositAddr, big.NewInt(1_500_000), "deposit:abc")
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	user := solana.MustPublicKeyFromBase58(testUserAddr)
	mint := solana.MustPublicKeyFromBase58(usdcMintAddr)
	deposit := solana.MustPublicKeyFromBase58(testDepositAddr)
	userATA, err := soltoken.AssociatedTokenAddress(user, mint, solana.TokenProgramID)
	require.NoError(t, err)
	depositATA, err := soltoken.AssociatedTokenAddress(deposit, mint, solana.TokenProgramID)
	require.NoError(t, err)

	create := descriptors[0]
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID.String(), create.ProgramID)
	assert.Equal(t, "01", create.DataHex)
	require.Len(t, create.Accounts, 6)
	assert.Equal(t, testSponsorAddr, create.Accounts[0].Address, "sponsor funds the deposit account")
	assert.True(t, create.Accounts[0].Signer)
	assert.True(t, create.Accounts[0].Writable)
	assert.Equal(t, depositATA.String(), create.Accounts[1].Address)
	assert.Equal(t, testDepositAddr, create.Accounts[2].Address)
	assert.Equal(t, usdcMintAddr, create.Accounts[3].Address)

	memo := descriptors[1]
	assert.Equal(t, soltoken.MemoProgramID.String(), memo.ProgramID)
	assert.Equal(t, "6465706f7369743a616263", memo.DataHex)
	require.Len(t, memo.Accounts, 1)
	assert.Equal(t, testUserAddr, memo.Accounts[0].Address)
	assert.True(t, memo.Accounts[0].Signer)

	transfer := descriptors[2]
	assert.Equal(t, solana.TokenProgramID.String(), transfer.ProgramID)
	assert.Equal(t, "0c60e316000000000006", transfer.DataHex)
	require.Len(t, transfer.Accounts, 4)
	assert.Equal(t, userATA.String(), transfer.Accounts[0].Address)
	assert.True(t, transfer.Accounts[0].Writable)
	assert.Equal(t, usdcMintAddr, transfer.Accounts[1].Address)
	assert.Equal(t, depositATA.String(), transfer.Accounts[2].Address)
	assert.True(t, transfer.Accounts[2].Writable)
	assert.Equal(t, testUserAddr, transfer.Accounts[3].Address)
	assert.True(t, transfer.Accounts[3].Signer)
}

func TestDepositInstructionsWithoutSponsorOrMemo(t *testing.T) {
	client := newTestIntents(t)
	req := testOrderRequest()
	req.SponsorAddress = ""

	descriptors, err := client.depositInstructions(req, testDepositAddr, big.NewInt(1_500_000), "")
	require.NoError(t, err)
	require.Len(t, descriptors, 2, "memo is omitted when the venue sends none")

	assert.Equal(t, testUserAddr, descriptors[0].Accounts[0].Address, "user funds the deposit account")
	assert.Equal(t, solana.TokenProgramID.String(), descriptors[1].ProgramID)
}

func TestDepositInstructionsRejectBadInputs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *types.OrderRequest)
		deposit string
		amount  *big.Int
		wantMsg string
	}{
		{
			name:    "refund address is not a solana key",
			mutate:  func(req *types.OrderRequest) { req.RefundTo = "not-base58" },
			deposit: testDepositAddr,
			amount:  big.NewInt(1),
			wantMsg: "refund address must be the user's solana address",
		},
		{
			name:    "garbage deposit address",
			mutate:  func(req *types.OrderRequest) {},
			deposit: "l0OI",
			amount:  big.NewInt(1),
			wantMsg: "invalid deposit address",
		},
		{
			name:    "garbage source mint",
			mutate:  func(req *types.OrderRequest) { req.SourceToken.Address = "xyz!" },
			deposit: testDepositAddr,
			amount:  big.NewInt(1),
			wantMsg: "invalid source token mint",
		},
		{
			name:    "garbage sponsor address",
			mutate:  func(req *types.OrderRequest) { req.SponsorAddress = "bogus!" },
			deposit: testDepositAddr,
			amount:  big.NewInt(1),
			wantMsg: "invalid sponsor address",
		},
		{
			name:    "amount exceeds uint64",
			mutate:  func(req *types.OrderRequest) {},
			deposit: testDepositAddr,
			amount:  new(big.Int).Lsh(big.NewInt(1), 64),
			wantMsg: "exceeds the transferable range",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestIntents(t)
			req := testOrderRequest()
			tc.mutate(req)

			_, err := client.depositInstructions(req, tc.deposit, tc.amount, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestIntentsStatusMapping(t *testing.T) {
	tests := []struct {
		venue string
		want  types.OrderStatus
	}{
		{"PENDING_DEPOSIT", types.StatusCreated},
		{"KNOWN_DEPOSIT_TX", types.StatusPending},
		{"PROCESSING", types.StatusPending},
		{"INCOMPLETE_DEPOSIT", types.StatusPending},
		{"SUCCESS", types.StatusCompleted},
		{"REFUNDED", types.StatusCancelled},
		{"FAILED", types.StatusFailed},
		{"SOMETHING_NEW", types.StatusPending},
		{"", types.StatusPending},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, intentsStatus(tc.venue), "status %q", tc.venue)
	}
}

func TestChainIDFromBlockchain(t *testing.T) {
	tests := []struct {
		venue string
		want  string
	}{
		{"sol", "solana"},
		{"eth", "ethereum"},
		{"arb", "arbitrum"},
		{"op", "optimism"},
		{"pol", "polygon"},
		{"matic", "polygon"},
		{"avax", "avalanche"},
		{"base", "base"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, chainIDFromBlockchain(tc.venue), "blockchain %q", tc.venue)
	}
}
