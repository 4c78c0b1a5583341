// Package oracle prices native gas in the user's token. Callers apply
// their own volatility buffer on top of the returned amount.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// wrappedSolMint is the price reference for the native unit.
const wrappedSolMint = "So11111111111111111111111111111111111111112"

// lamportsExponent shifts lamports to whole SOL.
const lamportsExponent = -9

// PriceSource converts a native-currency amount into an equivalent amount
// of the given token, as an unbuffered decimal in whole token units.
type PriceSource interface {
	TokenAmountForNative(ctx context.Context, lamports uint64, token types.Token) (decimal.Decimal, error)
}

// Client queries a price API exposing GET /price/v2?ids=<mint>&vsToken=<mint>
// with string decimal prices.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient builds a price client for the given base URL.
func NewClient(baseURL, apiKey string, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("oracle base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(zap.String("module", "oracle")),
	}, nil
}

type priceEntry struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

type priceResponse struct {
	Data map[string]*priceEntry `json:"data"`
}

// TokenAmountForNative returns how much of token equals lamports of native
// currency, using the token's price quoted against wrapped SOL. The result
// is a plain decimal in whole token units; no buffer is applied here.
func (c *Client) TokenAmountForNative(ctx context.Context, lamports uint64, token types.Token) (decimal.Decimal, error) {
	if lamports == 0 {
		return decimal.Zero, fmt.Errorf("native amount must be positive")
	}
	native := decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), lamportsExponent)
	if token.Address == wrappedSolMint {
		return native, nil
	}
	if token.Address == "" {
		return decimal.Zero, fmt.Errorf("token %s has no address to price", token.Symbol)
	}

	price, err := c.fetchPrice(ctx, token.Address)
	if err != nil {
		return decimal.Zero, err
	}
	return native.DivRound(price, 18), nil
}

// fetchPrice returns the token's price denominated in SOL.
func (c *Client) fetchPrice(ctx context.Context, mint string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/price/v2?ids=%s&vsToken=%s", c.baseURL, mint, wrappedSolMint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, types.E(types.CodeInternal, "oracle.fetchPrice", err)
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return decimal.Zero, types.E(types.CodeNetwork, "oracle.fetchPrice", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decimal.Zero, types.E(types.CodeNetwork, "oracle.fetchPrice",
			&types.HTTPError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var out priceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, types.E(types.CodeNetwork, "oracle.fetchPrice",
			fmt.Errorf("failed to decode price response: %w", err))
	}
	entry := out.Data[mint]
	if entry == nil || entry.Price == "" {
		return decimal.Zero, types.E(types.CodeVenue, "oracle.fetchPrice",
			fmt.Errorf("no price available for %s", mint))
	}
	price, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return decimal.Zero, types.E(types.CodeVenue, "oracle.fetchPrice",
			fmt.Errorf("invalid price %q for %s: %w", entry.Price, mint, err))
	}
	if price.Sign() <= 0 {
		return decimal.Zero, types.E(types.CodeVenue, "oracle.fetchPrice",
			fmt.Errorf("non-positive price %s for %s", price, mint))
	}
	c.logger.Debug("fetched token price", zap.String("mint", mint), zap.String("price", price.String()))
	return price, nil
}
