// Package sponsor implements the trusted signing endpoint and its client.
// The server holds the sponsor keypair and co-signs user transactions as
// fee payer after checking them; the client is the pipeline-side caller.
package sponsor

import (
	"context"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gasless-swap/pkg/oracle"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/wallet"
)

const (
	defaultMaxInstructions = 10
	defaultRateLimit       = 10
	defaultRateBurst       = 20
)

// ServerConfig holds the HTTP-facing settings of the signing service.
type ServerConfig struct {
	Addr string
	// APIKey enables X-API-Key auth when non-empty.
	APIKey string
	// MaxInstructions bounds how many instructions a transaction may carry
	// before the sponsor refuses to sign it.
	MaxInstructions int
	// RateLimit is requests per second per client IP; RateBurst the burst.
	RateLimit float64
	RateBurst int
	DevMode   bool
}

// ServerDeps are the collaborators the handlers need. Signer may be nil,
// in which case the sign endpoint fails closed with 503.
type ServerDeps struct {
	Signer wallet.Wallet
	// RPC is used for fee estimation; nil falls back to the per-signature
	// base fee.
	RPC *rpc.Client
	// Prices converts lamport costs into fee-token amounts; nil disables
	// token-denominated estimates.
	Prices oracle.PriceSource
	// FeeTokens are the tokens the sponsor accepts payment in.
	FeeTokens []types.Token
	// BufferBps is the volatility buffer applied to token estimates.
	BufferBps uint32
	Logger    *zap.Logger
}

// Server wraps the echo instance with lifecycle management.
type Server struct {
	e      *echo.Echo
	cfg    ServerConfig
	logger *zap.Logger
	closed chan struct{}
}

// NewServer wires routes, middleware and handlers.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if cfg.MaxInstructions <= 0 {
		cfg.MaxInstructions = defaultMaxInstructions
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("module", "sponsor"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler()

	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimit),
		Burst:     cfg.RateBurst,
		ExpiresIn: 2 * time.Minute,
	})))
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/healthz"
			},
		}))
	}

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	h := &Handlers{
		Signer:          deps.Signer,
		RPC:             deps.RPC,
		Prices:          deps.Prices,
		FeeTokens:       deps.FeeTokens,
		BufferBps:       deps.BufferBps,
		MaxInstructions: cfg.MaxInstructions,
		DevMode:         cfg.DevMode,
		Logger:          logger,
	}

	v1 := e.Group("/v1")
	v1.POST("/sign", h.Sign)
	v1.GET("/address", h.Address)
	v1.POST("/estimate", h.Estimate)
	v1.GET("/tokens", h.Tokens)
	e.GET("/healthz", h.Health)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})

	return &Server{e: e, cfg: cfg, logger: logger, closed: make(chan struct{})}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("signing service listening", zap.String("addr", s.cfg.Addr))
	return s.e.Start(s.cfg.Addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until shutdown completes or ctx expires.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// jsonErrorHandler keeps every error, including 404 and 405 from the
// router, in the shared JSON envelope.
func jsonErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code})
			return
		}
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}
