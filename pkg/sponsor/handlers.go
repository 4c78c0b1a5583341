package sponsor

import (
	"encoding/base64"
	"net/http"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/oracle"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/wallet"
)

// lamportsPerSignature is the base fee charged when the RPC estimate is
// unavailable.
const lamportsPerSignature = 5000

// Handlers implements the signing service endpoints.
type Handlers struct {
	Signer          wallet.Wallet
	RPC             *rpc.Client
	Prices          oracle.PriceSource
	FeeTokens       []types.Token
	BufferBps       uint32
	MaxInstructions int
	DevMode         bool
	Logger          *zap.Logger
}

func (h *Handlers) err(c echo.Context, code int, msg string, cause error) error {
	if h.DevMode && cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return c.JSON(code, ErrorResponse{Error: msg, Code: code})
}

// Health reports liveness.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// Sign co-signs a transaction as fee payer. It refuses anything where the
// sponsor is not the fee payer or the instruction count is out of bounds,
// and fails closed when no key is configured.
func (h *Handlers) Sign(c echo.Context) error {
	if h.Signer == nil {
		return h.err(c, http.StatusServiceUnavailable, "signing key is not configured", nil)
	}

	var req SignRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", err)
	}
	if req.Transaction == "" {
		return h.err(c, http.StatusBadRequest, "transaction is required", nil)
	}

	tx, err := decodeTransaction(req.Transaction)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid transaction", err)
	}

	ixCount := len(tx.Message.Instructions)
	if ixCount < 1 || ixCount > h.MaxInstructions {
		h.Logger.Warn("refusing to sign transaction with out-of-bounds instruction count",
			zap.Int("instructions", ixCount), zap.Int("max", h.MaxInstructions))
		return h.err(c, http.StatusUnprocessableEntity, "instruction count out of bounds", nil)
	}

	if len(tx.Message.AccountKeys) == 0 {
		return h.err(c, http.StatusBadRequest, "invalid transaction", nil)
	}
	feePayer := h.Signer.PublicKey()
	if !tx.Message.AccountKeys[0].Equals(feePayer) {
		h.Logger.Warn("refusing to sign transaction with foreign fee payer",
			zap.String("fee_payer", tx.Message.AccountKeys[0].String()))
		return h.err(c, http.StatusUnprocessableEntity, "transaction fee payer is not the sponsor", nil)
	}

	if err := h.Signer.SignTransaction(c.Request().Context(), tx); err != nil {
		h.Logger.Error("failed to sign transaction", zap.Error(err))
		return h.err(c, http.StatusInternalServerError, "failed to sign transaction", err)
	}

	signed, err := tx.MarshalBinary()
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to serialize transaction", err)
	}

	h.Logger.Info("co-signed transaction",
		zap.Int("instructions", ixCount),
		zap.String("fee_payer", feePayer.String()))
	return c.JSON(http.StatusOK, SignResponse{SignedTransaction: base64.StdEncoding.EncodeToString(signed)})
}

// Address returns the sponsor's fee-payer address.
func (h *Handlers) Address(c echo.Context) error {
	if h.Signer == nil {
		return h.err(c, http.StatusServiceUnavailable, "signing key is not configured", nil)
	}
	return c.JSON(http.StatusOK, AddressResponse{Address: h.Signer.PublicKey().String()})
}

// Estimate prices a transaction in lamports and, when a fee token is
// given, in buffered token units.
func (h *Handlers) Estimate(c echo.Context) error {
	var req EstimateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", err)
	}
	if req.Transaction == "" {
		return h.err(c, http.StatusBadRequest, "transaction is required", nil)
	}

	tx, err := decodeTransaction(req.Transaction)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid transaction", err)
	}

	lamports := uint64(tx.Message.Header.NumRequiredSignatures) * lamportsPerSignature
	if h.RPC != nil {
		if fee, ferr := h.networkFee(c, tx); ferr == nil && fee > 0 {
			lamports = fee
		} else if ferr != nil {
			h.Logger.Debug("fee lookup failed, using per-signature fallback", zap.Error(ferr))
		}
	}

	resp := EstimateResponse{Lamports: lamports}
	if req.Token != "" {
		if h.Prices == nil {
			return h.err(c, http.StatusUnprocessableEntity, "token estimates are not configured", nil)
		}
		token, ok := h.feeToken(req.Token)
		if !ok {
			return h.err(c, http.StatusUnprocessableEntity, "unsupported fee token", nil)
		}
		amount, perr := h.Prices.TokenAmountForNative(c.Request().Context(), lamports, token)
		if perr != nil {
			h.Logger.Error("price lookup failed", zap.String("token", req.Token), zap.Error(perr))
			return h.err(c, http.StatusBadGateway, "price lookup failed", perr)
		}
		buffered, berr := feecalc.ReimbursementAmount(amount, h.BufferBps, token.Decimals)
		if berr != nil {
			return h.err(c, http.StatusInternalServerError, "failed to compute reimbursement", berr)
		}
		resp.Token = token.Address
		resp.TokenAmount = buffered.String()
	}
	return c.JSON(http.StatusOK, resp)
}

// Tokens lists the configured fee tokens.
func (h *Handlers) Tokens(c echo.Context) error {
	tokens := h.FeeTokens
	if tokens == nil {
		tokens = []types.Token{}
	}
	return c.JSON(http.StatusOK, TokensResponse{Tokens: tokens})
}

func (h *Handlers) networkFee(c echo.Context, tx *solana.Transaction) (uint64, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, err
	}
	out, err := h.RPC.GetFeeForMessage(c.Request().Context(), base64.StdEncoding.EncodeToString(msg), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	return *out.Value, nil
}

func (h *Handlers) feeToken(mint string) (types.Token, bool) {
	for _, t := range h.FeeTokens {
		if t.Address == mint {
			return t, true
		}
	}
	return types.Token{}, false
}

func decodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}
