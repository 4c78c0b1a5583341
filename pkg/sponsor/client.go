package sponsor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// Client calls the signing service from the swap pipeline.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientHTTP swaps the underlying HTTP client.
func WithClientHTTP(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// WithClientLogger attaches a logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a signing-service client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("module", "sponsor-client"))
	return c
}

// SignTransaction submits a base64 transaction for co-signing and returns
// the signed base64. A refusal by the service is a signing error; anything
// on the way there is a network error.
func (c *Client) SignTransaction(ctx context.Context, txBase64 string) (string, error) {
	const op = "sponsor.SignTransaction"
	var resp SignResponse
	err := c.do(ctx, http.MethodPost, "/v1/sign", SignRequest{Transaction: txBase64}, &resp, types.CodeSigning)
	if err != nil {
		return "", types.E(types.CodeOf(err), op, err)
	}
	if resp.SignedTransaction == "" {
		return "", types.E(types.CodeSigning, op, fmt.Errorf("service returned an empty transaction"))
	}
	return resp.SignedTransaction, nil
}

// FeePayerAddress returns the sponsor's public key.
func (c *Client) FeePayerAddress(ctx context.Context) (string, error) {
	const op = "sponsor.FeePayerAddress"
	var resp AddressResponse
	if err := c.do(ctx, http.MethodGet, "/v1/address", nil, &resp, types.CodeNetwork); err != nil {
		return "", types.E(types.CodeOf(err), op, err)
	}
	if resp.Address == "" {
		return "", types.E(types.CodeNetwork, op, fmt.Errorf("service returned an empty address"))
	}
	return resp.Address, nil
}

// EstimateFee prices a transaction, optionally in a fee token.
func (c *Client) EstimateFee(ctx context.Context, txBase64, tokenMint string) (*EstimateResponse, error) {
	const op = "sponsor.EstimateFee"
	var resp EstimateResponse
	req := EstimateRequest{Transaction: txBase64, Token: tokenMint}
	if err := c.do(ctx, http.MethodPost, "/v1/estimate", req, &resp, types.CodeNetwork); err != nil {
		return nil, types.E(types.CodeOf(err), op, err)
	}
	return &resp, nil
}

// SupportedTokens lists the fee tokens the sponsor accepts.
func (c *Client) SupportedTokens(ctx context.Context) ([]types.Token, error) {
	const op = "sponsor.SupportedTokens"
	var resp TokensResponse
	if err := c.do(ctx, http.MethodGet, "/v1/tokens", nil, &resp, types.CodeNetwork); err != nil {
		return nil, types.E(types.CodeOf(err), op, err)
	}
	return resp.Tokens, nil
}

// do performs one JSON round trip. Non-2xx responses carry refusalCode so
// callers can distinguish the service refusing from the wire failing.
func (c *Client) do(ctx context.Context, method, path string, body, out any, refusalCode types.Code) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return types.E(types.CodeInternal, "sponsor.do", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return types.E(types.CodeInternal, "sponsor.do", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.E(types.CodeNetwork, "sponsor.do", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.E(types.CodeNetwork, "sponsor.do", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope ErrorResponse
		if jerr := json.Unmarshal(raw, &envelope); jerr == nil && envelope.Error != "" {
			c.logger.Debug("signing service refused request",
				zap.Int("status", resp.StatusCode), zap.String("error", envelope.Error))
			return types.E(refusalCode, "sponsor.do", fmt.Errorf("%s: %w", envelope.Error,
				&types.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}))
		}
		return types.E(refusalCode, "sponsor.do", &types.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return types.E(types.CodeNetwork, "sponsor.do", fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}
