package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"gasless-swap/config"
	"gasless-swap/pkg/history"
	"gasless-swap/pkg/oracle"
	"gasless-swap/pkg/signing"
	"gasless-swap/pkg/sponsor"
	"gasless-swap/pkg/swap"
	"gasless-swap/pkg/tokenmeta"
	"gasless-swap/pkg/tracker"
	"gasless-swap/pkg/txassembly"
	"gasless-swap/pkg/venue"
	"gasless-swap/pkg/wallet"
)

// newLogger builds the CLI logger. Quiet by default so command output
// stays readable; verbose switches to debug.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildVenue(cfg *config.Config, logger *zap.Logger) (venue.Provider, error) {
	if err := cfg.RequireVenueAuth(); err != nil {
		return nil, err
	}
	switch cfg.Venue.Provider {
	case "rest":
		return venue.NewRESTClient(cfg.Venue.BaseURL, cfg.Venue.APIKey, venue.WithLogger(logger))
	default:
		return venue.NewIntentsClient(cfg.Venue.JWTToken, logger)
	}
}

func buildWallet(cfg *config.Config) (wallet.Wallet, error) {
	if err := cfg.RequireWallet(); err != nil {
		return nil, err
	}
	if cfg.Wallet.SecretKey != "" {
		return wallet.NewLocalWallet(cfg.Wallet.SecretKey)
	}
	return wallet.LoadKeypairFile(cfg.Wallet.KeypairPath)
}

// pipeline is everything a swap execution needs, built once per command.
type pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	venue    venue.Provider
	wallet   wallet.Wallet
	rpc      *rpc.Client
	sponsor  *sponsor.Client
	history  *history.Store
	executor *swap.Executor
	feePayer solana.PublicKey
}

// newPipeline wires the full execution stack from config around an
// existing venue client. gate may be nil when no quote controller is in
// play.
func newPipeline(ctx context.Context, cfg *config.Config, v venue.Provider, gate swap.QuoteGate, logger *zap.Logger) (*pipeline, error) {
	w, err := buildWallet(cfg)
	if err != nil {
		return nil, err
	}

	rpcClient := rpc.New(cfg.Solana.RPCURL)
	sponsorClient := sponsor.NewClient(cfg.Sponsor.BaseURL, cfg.Sponsor.APIKey, sponsor.WithClientLogger(logger))

	feePayerAddr, err := sponsorClient.FeePayerAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reach the signing service: %w", err)
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerAddr)
	if err != nil {
		return nil, fmt.Errorf("signing service returned an invalid fee payer %q: %w", feePayerAddr, err)
	}

	prices, err := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, logger)
	if err != nil {
		return nil, err
	}

	submitterOpts := []signing.RPCSubmitterOption{signing.WithSkipPreflight(cfg.Solana.SkipPreflight)}
	if cfg.Solana.MaxRetries > 0 {
		submitterOpts = append(submitterOpts, signing.WithMaxRetries(cfg.Solana.MaxRetries))
	}
	submitter := signing.NewRPCSubmitter(rpcClient, submitterOpts...)
	coordinator := signing.New(sponsorClient, submitter, signing.Config{}, logger)

	hist, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Warn("history database unavailable, continuing without it",
			zap.String("path", cfg.History.Path), zap.Error(err))
		hist = nil
	}

	deps := swap.Deps{
		Venue:       v,
		Gate:        gate,
		Inspector:   tokenmeta.NewRPCInspector(rpcClient, logger),
		Oracle:      prices,
		Assembler:   txassembly.New(logger),
		Blockhash:   swap.NewRPCBlockhashSource(rpcClient),
		Coordinator: coordinator,
		Tracker:     tracker.New(v, tracker.Config{}, logger),
		Wallet:      w,
		FeePayer:    feePayer,
		Logger:      logger,
	}
	if hist != nil {
		deps.History = hist
	}

	executor := swap.NewExecutor(deps, swap.Config{
		BufferBps:                cfg.Sponsor.BufferBps,
		PriorityFeeMicroLamports: cfg.Solana.PriorityFeeMicroLamports,
	})

	return &pipeline{
		cfg:      cfg,
		logger:   logger,
		venue:    v,
		wallet:   w,
		rpc:      rpcClient,
		sponsor:  sponsorClient,
		history:  hist,
		executor: executor,
		feePayer: feePayer,
	}, nil
}

func (p *pipeline) Close() {
	if p.history != nil {
		_ = p.history.Close()
	}
	_ = p.logger.Sync()
}
