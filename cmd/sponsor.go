package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasless-swap/config"
	"gasless-swap/pkg/oracle"
	"gasless-swap/pkg/sponsor"
	"gasless-swap/pkg/tokenmeta"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/wallet"
)

var sponsorListenAddr string

var sponsorCmd = &cobra.Command{
	Use:   "sponsor",
	Short: "Run or query the fee sponsor service",
}

var sponsorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sponsor signing service",
	Long: `Run the HTTP service that co-signs user transactions as fee payer.

The service refuses to sign until sponsor.secret_key is configured, and
only signs transactions whose fee payer matches its own keypair.

Examples:
  gasless-swap sponsor serve
  gasless-swap sponsor serve --listen :9000`,
	Run: runSponsorServe,
}

var sponsorAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the sponsor's fee payer address",
	Run:   runSponsorAddress,
}

func init() {
	rootCmd.AddCommand(sponsorCmd)
	sponsorCmd.AddCommand(sponsorServeCmd)
	sponsorCmd.AddCommand(sponsorAddressCmd)

	sponsorServeCmd.Flags().StringVar(&sponsorListenAddr, "listen", "", "Listen address (overrides sponsor.listen_addr)")
}

func runSponsorServe(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	logger := newLogger(verbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	var signer wallet.Wallet
	if cfg.Sponsor.SecretKey != "" {
		w, err := wallet.NewLocalWallet(cfg.Sponsor.SecretKey)
		if err != nil {
			printError(fmt.Errorf("invalid sponsor secret key: %w", err))
			os.Exit(1)
		}
		signer = w
	} else {
		logger.Warn("no sponsor secret key configured, sign requests will be refused")
	}

	rpcClient := rpc.New(cfg.Solana.RPCURL)

	var prices oracle.PriceSource
	if cfg.Oracle.BaseURL != "" {
		oc, err := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, logger)
		if err != nil {
			logger.Warn("price oracle unavailable, token estimates disabled", zap.Error(err))
		} else {
			prices = oc
		}
	}

	feeTokens := resolveFeeTokens(ctx, cfg.Sponsor.FeeTokens, rpcClient, logger)

	addr := cfg.Sponsor.ListenAddr
	if sponsorListenAddr != "" {
		addr = sponsorListenAddr
	}

	srv := sponsor.NewServer(sponsor.ServerConfig{
		Addr:            addr,
		APIKey:          cfg.Sponsor.APIKey,
		MaxInstructions: cfg.Sponsor.MaxInstructions,
		RateLimit:       cfg.Sponsor.RateLimit,
		RateBurst:       cfg.Sponsor.RateBurst,
		DevMode:         verbose,
	}, sponsor.ServerDeps{
		Signer:    signer,
		RPC:       rpcClient,
		Prices:    prices,
		FeeTokens: feeTokens,
		BufferBps: cfg.Sponsor.BufferBps,
		Logger:    logger,
	})

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if signer != nil {
		fmt.Printf("Sponsor fee payer: %s\n", color.CyanString(signer.PublicKey().String()))
	}
	fmt.Printf("Accepting %d fee tokens. Listening on %s\n", len(feeTokens), addr)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		printError(err)
		os.Exit(1)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.WaitClosed(waitCtx)
	fmt.Println("Sponsor service stopped.")
}

func runSponsorAddress(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	logger := newLogger(verbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	sc := sponsor.NewClient(cfg.Sponsor.BaseURL, cfg.Sponsor.APIKey, sponsor.WithClientLogger(logger))
	addr, err := sc.FeePayerAddress(ctx)
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		os.Exit(1)
	}
	fmt.Println(addr)
}

// resolveFeeTokens turns the configured "SYMBOL:mint" entries into full
// token descriptors, pulling decimals and extensions from the chain.
// Entries that fail to resolve are skipped with a warning.
func resolveFeeTokens(ctx context.Context, entries []string, client *rpc.Client, logger *zap.Logger) []types.Token {
	inspector := tokenmeta.NewRPCInspector(client, logger)

	tokens := make([]types.Token, 0, len(entries))
	for _, entry := range entries {
		symbol, mintStr, found := strings.Cut(entry, ":")
		if !found {
			mintStr = entry
			symbol = shortAddress(entry)
		}

		mint, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			logger.Warn("skipping fee token with bad mint", zap.String("entry", entry), zap.Error(err))
			continue
		}

		token := types.Token{
			AssetID:  mintStr,
			Symbol:   strings.ToUpper(symbol),
			ChainID:  sourceChainID,
			Address:  mintStr,
			Decimals: 6,
		}

		meta, err := inspector.Inspect(ctx, mint)
		if err != nil {
			logger.Warn("could not inspect fee token mint, using defaults",
				zap.String("mint", mintStr), zap.Error(err))
		} else {
			token.Decimals = meta.Decimals
			token.TokenProgram = meta.Program.String()
			token.TransferFee = meta.TransferFee
		}

		tokens = append(tokens, token)
	}
	return tokens
}

func shortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
