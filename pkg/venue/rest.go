package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gasless-swap/pkg/types"
)

// RESTClient talks to a venue exposing the JSON order API: POST /v1/orders,
// GET /v1/orders/{id}, GET /v1/tokens.
type RESTClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// RESTOption customizes a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *RESTClient) { r.httpc = c }
}

// WithRateLimit bounds outbound requests per second.
func WithRateLimit(rps float64, burst int) RESTOption {
	return func(r *RESTClient) { r.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) RESTOption {
	return func(r *RESTClient) { r.logger = l.With(zap.String("module", "venue")) }
}

// NewRESTClient builds a venue client for the given base URL.
func NewRESTClient(baseURL, apiKey string, opts ...RESTOption) (*RESTClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("venue base URL is required")
	}
	c := &RESTClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type orderRequestBody struct {
	SourceAsset      string `json:"sourceAsset"`
	DestinationAsset string `json:"destinationAsset"`
	AmountIn         string `json:"amountIn"`
	Recipient        string `json:"recipient"`
	RefundTo         string `json:"refundTo,omitempty"`
	SlippageBps      uint16 `json:"slippageBps"`
	FeePayer         string `json:"feePayer,omitempty"`
	ClientRef        string `json:"clientRef,omitempty"`
	Deadline         string `json:"deadline,omitempty"`
}

type feesBody struct {
	OperatingExpense string `json:"operatingExpense"`
	NetworkFee       string `json:"networkFee"`
	GasLamports      uint64 `json:"gasLamports"`
	GasTokenAmount   string `json:"gasTokenAmount"`
}

type payloadBody struct {
	Kind         string                        `json:"kind"`
	Chain        string                        `json:"chain"`
	Serialized   string                        `json:"serialized,omitempty"`
	Instructions []types.InstructionDescriptor `json:"instructions,omitempty"`
}

type orderBody struct {
	ID             string      `json:"id"`
	AmountIn       string      `json:"amountIn"`
	AmountOut      string      `json:"amountOut"`
	MinAmountOut   string      `json:"minAmountOut"`
	Fees           feesBody    `json:"fees"`
	TimeEstimate   int         `json:"timeEstimate"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	DepositAddress string      `json:"depositAddress,omitempty"`
	Transaction    payloadBody `json:"transaction"`
}

type orderEnvelope struct {
	Order *orderBody `json:"order"`
}

type statusBody struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	AmountIn   string    `json:"amountIn"`
	AmountOut  string    `json:"amountOut"`
	SrcChainID string    `json:"srcChainId"`
	DstChainID string    `json:"dstChainId"`
	SrcTxHash  string    `json:"srcTxHash"`
	DstTxHash  string    `json:"dstTxHash"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type statusEnvelope struct {
	Order *statusBody `json:"order"`
}

type tokenBody struct {
	AssetID        string `json:"assetId"`
	Symbol         string `json:"symbol"`
	ChainID        string `json:"chainId"`
	Address        string `json:"address"`
	Decimals       uint8  `json:"decimals"`
	TokenProgram   string `json:"tokenProgram,omitempty"`
	TransferFeeBps uint16 `json:"transferFeeBps,omitempty"`
	TransferFeeMax string `json:"transferFeeMax,omitempty"`
	RequiresMemo   bool   `json:"requiresMemo,omitempty"`
}

type tokensEnvelope struct {
	Tokens []tokenBody `json:"tokens"`
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateOrder prices the swap and returns the venue's executable quote.
func (c *RESTClient) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, types.E(types.CodeInvalidInput, "venue.CreateOrder", err)
	}
	body := orderRequestBody{
		SourceAsset:      req.SourceToken.AssetID,
		DestinationAsset: req.DestToken.AssetID,
		AmountIn:         req.AmountIn.String(),
		Recipient:        req.Recipient,
		RefundTo:         req.RefundTo,
		SlippageBps:      req.SlippageBps,
		FeePayer:         req.SponsorAddress,
		ClientRef:        req.ClientRef,
	}
	if !req.Deadline.IsZero() {
		body.Deadline = req.Deadline.UTC().Format(time.RFC3339)
	}

	var env orderEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/orders", &body, &env); err != nil {
		return nil, err
	}
	if env.Order == nil {
		return nil, types.E(types.CodeVenue, "venue.CreateOrder", fmt.Errorf("empty order in response"))
	}
	quote, err := c.mapQuote(req, env.Order)
	if err != nil {
		return nil, types.E(types.CodeVenue, "venue.CreateOrder", err)
	}
	c.logger.Debug("created order",
		zap.String("order_id", quote.ID),
		zap.String("amount_in", quote.AmountIn.String()),
		zap.String("amount_out", quote.AmountOut.String()))
	return quote, nil
}

// GetOrderStatus reports the venue's view of an order.
func (c *RESTClient) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderInfo, error) {
	if orderID == "" {
		return nil, types.E(types.CodeInvalidInput, "venue.GetOrderStatus", fmt.Errorf("order id is required"))
	}
	var env statusEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &env); err != nil {
		return nil, err
	}
	if env.Order == nil {
		return nil, types.E(types.CodeVenue, "venue.GetOrderStatus", ErrOrderNotFound)
	}
	status := types.OrderStatus(env.Order.Status)
	if !status.Valid() {
		return nil, types.E(types.CodeVenue, "venue.GetOrderStatus",
			fmt.Errorf("venue returned unknown status %q", env.Order.Status))
	}
	info := &types.OrderInfo{
		ID:         env.Order.ID,
		Status:     status,
		SrcChainID: env.Order.SrcChainID,
		DstChainID: env.Order.DstChainID,
		SrcTxHash:  env.Order.SrcTxHash,
		DstTxHash:  env.Order.DstTxHash,
		CreatedAt:  env.Order.CreatedAt,
		UpdatedAt:  env.Order.UpdatedAt,
	}
	info.AmountIn, _ = parseAmount(env.Order.AmountIn)
	info.AmountOut, _ = parseAmount(env.Order.AmountOut)
	return info, nil
}

// GetTokens lists the venue's quotable assets.
func (c *RESTClient) GetTokens(ctx context.Context) ([]types.Token, error) {
	var env tokensEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/tokens", nil, &env); err != nil {
		return nil, err
	}
	tokens := make([]types.Token, 0, len(env.Tokens))
	for _, tb := range env.Tokens {
		t := types.Token{
			AssetID:      tb.AssetID,
			Symbol:       tb.Symbol,
			ChainID:      tb.ChainID,
			Address:      tb.Address,
			Decimals:     tb.Decimals,
			TokenProgram: tb.TokenProgram,
			RequiresMemo: tb.RequiresMemo,
		}
		if tb.TransferFeeBps > 0 {
			max, err := parseAmount(tb.TransferFeeMax)
			if err != nil {
				return nil, types.E(types.CodeVenue, "venue.GetTokens",
					fmt.Errorf("token %s has invalid transfer fee maximum %q", tb.AssetID, tb.TransferFeeMax))
			}
			t.TransferFee = &types.TransferFeeConfig{BasisPoints: tb.TransferFeeBps, MaximumFee: max}
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (c *RESTClient) mapQuote(req *types.OrderRequest, ob *orderBody) (*types.Quote, error) {
	amountIn, err := parseAmount(ob.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("invalid amountIn %q", ob.AmountIn)
	}
	amountOut, err := parseAmount(ob.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("invalid amountOut %q", ob.AmountOut)
	}
	minOut, err := parseAmount(ob.MinAmountOut)
	if err != nil {
		minOut = amountOut
	}
	fees := types.FeeBreakdown{GasLamports: ob.Fees.GasLamports}
	fees.OperatingExpense, _ = parseAmount(ob.Fees.OperatingExpense)
	fees.NetworkFlatFee, _ = parseAmount(ob.Fees.NetworkFee)
	if ob.Fees.GasTokenAmount != "" {
		fees.GasTokenAmount, err = parseAmount(ob.Fees.GasTokenAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid gasTokenAmount %q", ob.Fees.GasTokenAmount)
		}
	}

	chainType, err := types.ChainTypeOf(ob.Transaction.Chain)
	if err != nil {
		return nil, err
	}
	quote := &types.Quote{
		ID:               ob.ID,
		SourceToken:      req.SourceToken,
		DestToken:        req.DestToken,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		MinAmountOut:     minOut,
		Fees:             fees,
		EstimatedSeconds: ob.TimeEstimate,
		CreatedAt:        time.Now(),
		ExpiresAt:        ob.ExpiresAt,
		DepositAddress:   ob.DepositAddress,
		Payload: types.TransactionPayload{
			Kind:         types.PayloadKind(ob.Transaction.Kind),
			ChainType:    chainType,
			SerializedTx: ob.Transaction.Serialized,
			Instructions: ob.Transaction.Instructions,
		},
	}
	if err := quote.Validate(); err != nil {
		return nil, err
	}
	return quote, nil
}

// do runs one JSON request against the venue, translating business error
// envelopes into typed errors and everything else into transport errors.
func (c *RESTClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return types.E(types.CodeNetwork, "venue.do", err)
	}

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return types.E(types.CodeInternal, "venue.do", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return types.E(types.CodeInternal, "venue.do", err)
	}
	httpReq.Header.Set("accept", "application/json")
	if in != nil {
		httpReq.Header.Set("content-type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.httpc.Do(httpReq)
	if err != nil {
		return types.E(types.CodeNetwork, "venue.do", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var envErr errorEnvelope
		if jsonErr := json.Unmarshal(body, &envErr); jsonErr == nil && envErr.Error != nil {
			return types.E(types.CodeVenue, "venue.do",
				classifyBusiness(envErr.Error.Code, envErr.Error.Message))
		}
		return types.E(types.CodeNetwork, "venue.do",
			&types.HTTPError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.E(types.CodeVenue, "venue.do", fmt.Errorf("failed to decode venue response: %w", err))
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", s)
	}
	return v, nil
}
