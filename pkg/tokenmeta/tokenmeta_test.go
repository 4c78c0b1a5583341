package tokenmeta

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gasless-swap/pkg/soltoken"
)

var (
	testMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testAccount = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

func legacyMintData(decimals uint8) []byte {
	data := make([]byte, baseMintLen)
	data[mintDecimalsOffset] = decimals
	return data
}

type tlvEntry struct {
	typ  uint16
	body []byte
}

func appendTLV(data []byte, exts []tlvEntry) []byte {
	for _, e := range exts {
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], e.typ)
		binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(e.body)))
		data = append(data, hdr[:]...)
		data = append(data, e.body...)
	}
	return data
}

func extendedMintData(decimals uint8, exts ...tlvEntry) []byte {
	data := make([]byte, tlvOffset)
	data[mintDecimalsOffset] = decimals
	data[typeByteOffset] = accountTypeMint
	return appendTLV(data, exts)
}

func extendedAccountData(exts ...tlvEntry) []byte {
	data := make([]byte, tlvOffset)
	data[typeByteOffset] = accountTypeAccount
	return appendTLV(data, exts)
}

// transferFeeBody lays out two (epoch, maximum, basis points) schedules
// after the 72 bytes of authorities and withheld amount.
func transferFeeBody(olderEpoch, olderMax uint64, olderBps uint16, newerEpoch, newerMax uint64, newerBps uint16) []byte {
	body := make([]byte, transferFeeConfigLen)
	const off = 32 + 32 + 8
	binary.LittleEndian.PutUint64(body[off:], olderEpoch)
	binary.LittleEndian.PutUint64(body[off+8:], olderMax)
	binary.LittleEndian.PutUint16(body[off+16:], olderBps)
	binary.LittleEndian.PutUint64(body[off+18:], newerEpoch)
	binary.LittleEndian.PutUint64(body[off+26:], newerMax)
	binary.LittleEndian.PutUint16(body[off+34:], newerBps)
	return body
}

func TestParseMintSelectsActiveFeeSchedule(t *testing.T) {
	data := extendedMintData(9, tlvEntry{
		typ:  extensionTransferFeeConfig,
		body: transferFeeBody(0, 1_000, 50, 3, 5_000, 300),
	})

	t.Run("newer schedule once its epoch starts", func(t *testing.T) {
		meta, err := parseMint(data, 5)
		require.NoError(t, err)
		assert.Equal(t, uint8(9), meta.Decimals)
		require.NotNil(t, meta.TransferFee)
		assert.Equal(t, uint16(300), meta.TransferFee.BasisPoints)
		assert.Equal(t, big.NewInt(5_000), meta.TransferFee.MaximumFee)
	})

	t.Run("older schedule before the switch", func(t *testing.T) {
		meta, err := parseMint(data, 2)
		require.NoError(t, err)
		require.NotNil(t, meta.TransferFee)
		assert.Equal(t, uint16(50), meta.TransferFee.BasisPoints)
		assert.Equal(t, big.NewInt(1_000), meta.TransferFee.MaximumFee)
	})

	t.Run("zero basis points means no fee", func(t *testing.T) {
		free := extendedMintData(9, tlvEntry{
			typ:  extensionTransferFeeConfig,
			body: transferFeeBody(0, 0, 0, 3, 0, 0),
		})
		meta, err := parseMint(free, 5)
		require.NoError(t, err)
		assert.Nil(t, meta.TransferFee)
	})
}

func TestParseMintWalksUnknownExtensions(t *testing.T) {
	data := extendedMintData(6,
		tlvEntry{typ: 3, body: make([]byte, 4)},
		tlvEntry{typ: extensionTransferFeeConfig, body: transferFeeBody(0, 1_000, 50, 0, 2_000, 100)},
	)

	meta, err := parseMint(data, 1)
	require.NoError(t, err)
	require.NotNil(t, meta.TransferFee)
	assert.Equal(t, uint16(100), meta.TransferFee.BasisPoints)
}

func TestParseMintStopsAtPadding(t *testing.T) {
	// a zero type header ends the TLV walk; entries after it are ignored
	data := extendedMintData(6, tlvEntry{typ: 0, body: nil})
	data = appendTLV(data, []tlvEntry{{typ: extensionTransferFeeConfig, body: transferFeeBody(0, 1_000, 50, 0, 2_000, 100)}})

	meta, err := parseMint(data, 1)
	require.NoError(t, err)
	assert.Nil(t, meta.TransferFee)
}

func TestParseMintWithoutExtensions(t *testing.T) {
	meta, err := parseMint(legacyMintData(6), 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), meta.Decimals)
	assert.Nil(t, meta.TransferFee)
}

func TestParseMintRejectsMalformedData(t *testing.T) {
	t.Run("short account data", func(t *testing.T) {
		_, err := parseMint(make([]byte, 10), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mint account data too short")
	})

	t.Run("extended account is not a mint", func(t *testing.T) {
		data := extendedAccountData(tlvEntry{typ: extensionMemoTransfer, body: []byte{1}})
		data[mintDecimalsOffset] = 6
		_, err := parseMint(data, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a mint")
	})

	t.Run("extension overruns the account", func(t *testing.T) {
		data := extendedMintData(6)
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], extensionTransferFeeConfig)
		binary.LittleEndian.PutUint16(hdr[2:4], 200)
		data = append(data, hdr[:]...)
		data = append(data, make([]byte, 10)...)
		_, err := parseMint(data, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overruns account data")
	})

	t.Run("truncated fee config", func(t *testing.T) {
		data := extendedMintData(6, tlvEntry{typ: extensionTransferFeeConfig, body: make([]byte, 10)})
		_, err := parseMint(data, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transfer fee config truncated")
	})
}

func TestAccountRequiresMemo(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"legacy account", make([]byte, baseAccountLen), false},
		{"extended without memo extension", extendedAccountData(), false},
		{"memo required", extendedAccountData(tlvEntry{typ: extensionMemoTransfer, body: []byte{1}}), true},
		{"memo disabled", extendedAccountData(tlvEntry{typ: extensionMemoTransfer, body: []byte{0}}), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := accountRequiresMemo(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("empty extension body", func(t *testing.T) {
		_, err := accountRequiresMemo(extendedAccountData(tlvEntry{typ: extensionMemoTransfer, body: nil}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "memo transfer extension truncated")
	})
}

type rpcAccount struct {
	owner solana.PublicKey
	data  []byte
}

// newTestInspector serves getAccountInfo and getEpochInfo from a fixed map.
func newTestInspector(t *testing.T, epoch uint64, accounts map[string]rpcAccount) *RPCInspector {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			ID     interface{}       `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result interface{}
		switch req.Method {
		case "getAccountInfo":
			var key string
			_ = json.Unmarshal(req.Params[0], &key)
			value := interface{}(nil)
			if acct, ok := accounts[key]; ok {
				value = map[string]interface{}{
					"lamports":   1_000_000,
					"owner":      acct.owner.String(),
					"data":       []string{base64.StdEncoding.EncodeToString(acct.data), "base64"},
					"executable": false,
					"rentEpoch":  0,
				}
			}
			result = map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value":   value,
			}
		case "getEpochInfo":
			result = map[string]interface{}{
				"absoluteSlot":     100,
				"blockHeight":      90,
				"epoch":            epoch,
				"slotIndex":        10,
				"slotsInEpoch":     432_000,
				"transactionCount": 0,
			}
		default:
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
			return
		}
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(ts.Close)
	return NewRPCInspector(rpc.New(ts.URL), zap.NewNop())
}

func TestInspectLegacyMint(t *testing.T) {
	inspector := newTestInspector(t, 5, map[string]rpcAccount{
		testMint.String(): {owner: solana.TokenProgramID, data: legacyMintData(6)},
	})

	meta, err := inspector.Inspect(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, testMint, meta.Mint)
	assert.Equal(t, solana.TokenProgramID, meta.Program)
	assert.Equal(t, uint8(6), meta.Decimals)
	assert.Nil(t, meta.TransferFee)
}

func TestInspectToken2022Mint(t *testing.T) {
	data := extendedMintData(9, tlvEntry{
		typ:  extensionTransferFeeConfig,
		body: transferFeeBody(0, 1_000, 50, 3, 5_000, 300),
	})
	inspector := newTestInspector(t, 5, map[string]rpcAccount{
		testMint.String(): {owner: soltoken.Token2022ProgramID, data: data},
	})

	meta, err := inspector.Inspect(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, soltoken.Token2022ProgramID, meta.Program)
	assert.Equal(t, uint8(9), meta.Decimals)
	require.NotNil(t, meta.TransferFee)
	assert.Equal(t, uint16(300), meta.TransferFee.BasisPoints)
	assert.Equal(t, big.NewInt(5_000), meta.TransferFee.MaximumFee)
}

func TestInspectMissingMint(t *testing.T) {
	inspector := newTestInspector(t, 5, nil)

	_, err := inspector.Inspect(context.Background(), testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestInspectRejectsForeignOwner(t *testing.T) {
	inspector := newTestInspector(t, 5, map[string]rpcAccount{
		testMint.String(): {owner: solana.SystemProgramID, data: legacyMintData(6)},
	})

	_, err := inspector.Inspect(context.Background(), testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a token mint")
}

func TestRequiresIncomingMemo(t *testing.T) {
	t.Run("token-2022 account with the flag set", func(t *testing.T) {
		inspector := newTestInspector(t, 5, map[string]rpcAccount{
			testAccount.String(): {
				owner: soltoken.Token2022ProgramID,
				data:  extendedAccountData(tlvEntry{typ: extensionMemoTransfer, body: []byte{1}}),
			},
		})
		got, err := inspector.RequiresIncomingMemo(context.Background(), testAccount)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("legacy accounts never require memos", func(t *testing.T) {
		inspector := newTestInspector(t, 5, map[string]rpcAccount{
			testAccount.String(): {owner: solana.TokenProgramID, data: make([]byte, baseAccountLen)},
		})
		got, err := inspector.RequiresIncomingMemo(context.Background(), testAccount)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("missing accounts never require memos", func(t *testing.T) {
		inspector := newTestInspector(t, 5, nil)
		got, err := inspector.RequiresIncomingMemo(context.Background(), testAccount)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestAccountExists(t *testing.T) {
	inspector := newTestInspector(t, 5, map[string]rpcAccount{
		testAccount.String(): {owner: solana.TokenProgramID, data: make([]byte, baseAccountLen)},
	})

	exists, err := inspector.AccountExists(context.Background(), testAccount)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = inspector.AccountExists(context.Background(), testMint)
	require.NoError(t, err)
	assert.False(t, exists)
}
