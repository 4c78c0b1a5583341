package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"gasless-swap/pkg/soltoken"
	"gasless-swap/pkg/types"
)

// intentsQuoteTTL bounds how long an intents quote is treated as priced;
// the deposit address itself stays valid much longer.
const intentsQuoteTTL = 30 * time.Second

// intentsDepositGasLamports estimates the native cost of the deposit
// transaction the sponsor fronts: one ATA rent exemption plus signature
// fees, rounded up.
const intentsDepositGasLamports = 2_100_000

// IntentsClient adapts the 1Click intents API to the Provider interface.
// The venue answers quotes with a deposit address; the adapter expresses
// the deposit as an instruction-list payload so the assembler can treat
// every venue uniformly.
type IntentsClient struct {
	client *oneclick.APIClient
	auth   context.Context
	logger *zap.Logger
}

// NewIntentsClient builds an adapter authenticated with the given JWT.
func NewIntentsClient(jwtToken string, logger *zap.Logger) (*IntentsClient, error) {
	if jwtToken == "" {
		return nil, fmt.Errorf("intents venue requires a JWT token")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := oneclick.NewConfiguration()
	return &IntentsClient{
		client: oneclick.NewAPIClient(cfg),
		auth:   context.WithValue(context.Background(), oneclick.ContextAccessToken, jwtToken),
		logger: logger.With(zap.String("module", "venue-intents")),
	}, nil
}

// CreateOrder requests a quote with a live deposit address and wraps the
// deposit into an executable instruction list.
func (c *IntentsClient) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, types.E(types.CodeInvalidInput, "venue.CreateOrder", err)
	}
	if req.SourceToken.ChainID != "solana" {
		return nil, types.E(types.CodeInvalidInput, "venue.CreateOrder",
			fmt.Errorf("intents venue only assembles solana-origin swaps, got %s", req.SourceToken.ChainID))
	}

	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(24 * time.Hour)
	}
	slippage := int32(req.SlippageBps)
	if slippage == 0 {
		slippage = 100
	}
	quoteReq := oneclick.NewQuoteRequest(
		false,
		"EXACT_INPUT",
		slippage,
		req.SourceToken.AssetID,
		"ORIGIN_CHAIN",
		req.DestToken.AssetID,
		req.AmountIn.String(),
		req.RefundTo,
		"ORIGIN_CHAIN",
		req.Recipient,
		"DESTINATION_CHAIN",
		deadline,
	)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.merge(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, c.wrapSDKError("venue.CreateOrder", httpResp, err)
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, types.E(types.CodeVenue, "venue.CreateOrder", fmt.Errorf("empty quote response"))
	}

	quote, err := c.mapQuote(req, resp)
	if err != nil {
		return nil, types.E(types.CodeVenue, "venue.CreateOrder", err)
	}
	c.logger.Debug("created intents order",
		zap.String("deposit_address", quote.DepositAddress),
		zap.String("amount_in", quote.AmountIn.String()))
	return quote, nil
}

// GetOrderStatus maps the intents execution status onto the order
// lifecycle. The order identifier is the deposit address.
func (c *IntentsClient) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderInfo, error) {
	if orderID == "" {
		return nil, types.E(types.CodeInvalidInput, "venue.GetOrderStatus", fmt.Errorf("order id is required"))
	}
	resp, httpResp, err := c.client.OneClickAPI.GetExecutionStatus(c.merge(ctx)).DepositAddress(orderID).Execute()
	if err != nil {
		return nil, c.wrapSDKError("venue.GetOrderStatus", httpResp, err)
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, types.E(types.CodeVenue, "venue.GetOrderStatus", ErrOrderNotFound)
	}
	return &types.OrderInfo{
		ID:        orderID,
		Status:    intentsStatus(resp.GetStatus()),
		UpdatedAt: time.Now(),
	}, nil
}

// GetTokens lists quotable assets across the venue's chains.
func (c *IntentsClient) GetTokens(ctx context.Context) ([]types.Token, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.merge(ctx)).Execute()
	if err != nil {
		return nil, c.wrapSDKError("venue.GetTokens", httpResp, err)
	}
	defer httpResp.Body.Close()

	tokens := make([]types.Token, 0, len(resp))
	for _, tr := range resp {
		tokens = append(tokens, types.Token{
			AssetID:  tr.GetAssetId(),
			Symbol:   tr.GetSymbol(),
			ChainID:  chainIDFromBlockchain(tr.GetBlockchain()),
			Address:  tr.GetContractAddress(),
			Decimals: uint8(tr.GetDecimals()),
		})
	}
	return tokens, nil
}

// SubmitDepositTx notifies the venue of the source-chain transaction so it
// can match the deposit faster than by scanning.
func (c *IntentsClient) SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)
	_, httpResp, err := c.client.OneClickAPI.SubmitDepositTx(c.merge(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return c.wrapSDKError("venue.SubmitDepositTx", httpResp, err)
	}
	defer httpResp.Body.Close()
	return nil
}

// mapQuote converts the SDK quote into the domain quote, synthesizing the
// deposit transfer as an instruction-list payload.
func (c *IntentsClient) mapQuote(req *types.OrderRequest, resp *oneclick.QuoteResponse) (*types.Quote, error) {
	q := resp.GetQuote()

	amountIn, ok := new(big.Int).SetString(q.GetAmountIn(), 10)
	if !ok {
		return nil, fmt.Errorf("venue returned invalid amountIn %q", q.GetAmountIn())
	}
	amountOut, ok := new(big.Int).SetString(q.GetAmountOut(), 10)
	if !ok {
		return nil, fmt.Errorf("venue returned invalid amountOut %q", q.GetAmountOut())
	}
	depositAddress := q.GetDepositAddress()
	if depositAddress == "" {
		return nil, fmt.Errorf("venue returned no deposit address")
	}

	memo := ""
	if q.HasDepositMemo() {
		memo = q.GetDepositMemo()
	}
	instructions, err := c.depositInstructions(req, depositAddress, amountIn, memo)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quote := &types.Quote{
		ID:               depositAddress,
		SourceToken:      req.SourceToken,
		DestToken:        req.DestToken,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		MinAmountOut:     amountOut,
		EstimatedSeconds: int(q.GetTimeEstimate()),
		CreatedAt:        now,
		ExpiresAt:        now.Add(intentsQuoteTTL),
		DepositAddress:   depositAddress,
		Payload: types.TransactionPayload{
			Kind:         types.PayloadInstructionList,
			ChainType:    types.ChainSolana,
			Instructions: instructions,
		},
	}
	quote.Fees.GasLamports = intentsDepositGasLamports
	return quote, nil
}

// depositInstructions renders the deposit as descriptors: make sure the
// deposit ATA exists, optionally attach the venue memo, then move the
// input amount from the user to the deposit address.
func (c *IntentsClient) depositInstructions(req *types.OrderRequest, depositAddress string, amountIn *big.Int, memo string) ([]types.InstructionDescriptor, error) {
	user, err := solana.PublicKeyFromBase58(req.RefundTo)
	if err != nil {
		return nil, fmt.Errorf("refund address must be the user's solana address: %w", err)
	}
	deposit, err := solana.PublicKeyFromBase58(depositAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit address %q: %w", depositAddress, err)
	}
	mint, err := solana.PublicKeyFromBase58(req.SourceToken.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid source token mint %q: %w", req.SourceToken.Address, err)
	}
	program, err := soltoken.ProgramFor(req.SourceToken)
	if err != nil {
		return nil, err
	}
	if !amountIn.IsUint64() {
		return nil, fmt.Errorf("amount %s exceeds the transferable range", amountIn)
	}

	funder := user
	if req.SponsorAddress != "" {
		sponsor, err := solana.PublicKeyFromBase58(req.SponsorAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid sponsor address %q: %w", req.SponsorAddress, err)
		}
		funder = sponsor
	}

	userATA, err := soltoken.AssociatedTokenAddress(user, mint, program)
	if err != nil {
		return nil, err
	}
	depositATA, err := soltoken.AssociatedTokenAddress(deposit, mint, program)
	if err != nil {
		return nil, err
	}

	var built []solana.Instruction
	createIx, err := soltoken.NewCreateATAIdempotentInstruction(funder, deposit, mint, program)
	if err != nil {
		return nil, err
	}
	built = append(built, createIx)
	if memo != "" {
		built = append(built, soltoken.NewMemoInstruction(memo, user))
	}
	built = append(built, soltoken.NewTransferCheckedInstruction(
		program, userATA, mint, depositATA, user, amountIn.Uint64(), req.SourceToken.Decimals))

	descriptors := make([]types.InstructionDescriptor, 0, len(built))
	for _, ix := range built {
		d, err := soltoken.Descriptor(ix)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// merge threads the caller's cancellation into the authenticated context.
func (c *IntentsClient) merge(ctx context.Context) context.Context {
	token := c.auth.Value(oneclick.ContextAccessToken)
	return context.WithValue(ctx, oneclick.ContextAccessToken, token)
}

// wrapSDKError extracts the venue's error body when present and classifies
// it; everything else is a transport failure.
func (c *IntentsClient) wrapSDKError(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return types.E(types.CodeNetwork, op, err)
	}
	defer httpResp.Body.Close()
	body, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(body) == 0 {
		return types.E(types.CodeNetwork, op,
			&types.HTTPError{StatusCode: httpResp.StatusCode, Body: err.Error()})
	}
	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
		if message, ok := parsed["message"].(string); ok && httpResp.StatusCode < 500 {
			code, _ := parsed["code"].(string)
			return types.E(types.CodeVenue, op, classifyBusiness(code, message))
		}
	}
	return types.E(types.CodeNetwork, op,
		&types.HTTPError{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(body))})
}

// intentsStatus maps 1Click execution statuses onto the order lifecycle.
func intentsStatus(s string) types.OrderStatus {
	switch s {
	case "PENDING_DEPOSIT":
		return types.StatusCreated
	case "KNOWN_DEPOSIT_TX", "PROCESSING", "INCOMPLETE_DEPOSIT":
		return types.StatusPending
	case "SUCCESS":
		return types.StatusCompleted
	case "REFUNDED":
		return types.StatusCancelled
	case "FAILED":
		return types.StatusFailed
	default:
		return types.StatusPending
	}
}

// chainIDFromBlockchain normalizes the venue's blockchain codes onto chain
// identifiers.
func chainIDFromBlockchain(b string) string {
	switch b {
	case "sol":
		return "solana"
	case "eth":
		return "ethereum"
	case "arb":
		return "arbitrum"
	case "op":
		return "optimism"
	case "pol", "matic":
		return "polygon"
	case "avax":
		return "avalanche"
	default:
		return b
	}
}
