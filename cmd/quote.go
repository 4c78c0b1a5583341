package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasless-swap/config"
	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/parser"
	"gasless-swap/pkg/quote"
	"gasless-swap/pkg/sponsor"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
)

var (
	quoteToChain   string
	quoteRecipient string
	quoteWatch     bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Price a gasless swap without executing it",
	Long: `Fetch a quote including the full fee breakdown: the amount the venue
pays out, the sponsored gas and the source-token fee that repays it.

Examples:
  # One-shot quote
  gasless-swap quote 100 USDC to ETH --to-chain ethereum --recipient 0x123...

  # Stream auto-refreshing quotes until interrupted
  gasless-swap quote 100 USDC to ETH --to-chain ethereum --recipient 0x123... --watch`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteToChain, "to-chain", sourceChainID, "Destination blockchain")
	quoteCmd.Flags().StringVar(&quoteRecipient, "recipient", "", "Recipient address (REQUIRED)")
	quoteCmd.Flags().BoolVar(&quoteWatch, "watch", false, "Keep the quote fresh until interrupted")
}

func runQuote(cmd *cobra.Command, args []string) {
	phrase, err := parser.ParseSwapPhrase(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if quoteRecipient == "" {
		printError(fmt.Errorf("--recipient is required (the venue prices routes per destination)"))
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	logger := newLogger(verbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	v, err := buildVenue(cfg, logger)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	tokens, err := v.GetTokens(ctx)
	if err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}
	srcToken, ok := findToken(tokens, phrase.SourceToken, sourceChainID)
	if !ok {
		s.Stop()
		printError(fmt.Errorf("token %s is not available on %s (try: gasless-swap tokens)", phrase.SourceToken, sourceChainID))
		os.Exit(1)
	}
	dstToken, ok := findToken(tokens, phrase.DestToken, quoteToChain)
	if !ok {
		s.Stop()
		printError(fmt.Errorf("token %s is not available on %s (try: gasless-swap tokens)", phrase.DestToken, quoteToChain))
		os.Exit(1)
	}

	amountIn, err := feecalc.SmallestUnits(phrase.Amount, srcToken.Decimals)
	if err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}

	if quoteWatch && !jsonOutput {
		watchQuotes(ctx, v, quote.SwapParams{
			SourceToken:    srcToken,
			DestToken:      dstToken,
			Amount:         phrase.Amount,
			Recipient:      quoteRecipient,
			SlippageBps:    cfg.Venue.SlippageBps,
			SponsorAddress: quoteSponsorAddress(ctx, cfg, logger),
		}, s, logger)
		return
	}

	req := &types.OrderRequest{
		SourceToken:    srcToken,
		DestToken:      dstToken,
		AmountIn:       amountIn,
		Recipient:      quoteRecipient,
		SlippageBps:    cfg.Venue.SlippageBps,
		SponsorAddress: quoteSponsorAddress(ctx, cfg, logger),
		ClientRef:      uuid.New().String(),
	}

	q, err := v.CreateOrder(ctx, req)
	s.Stop()
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"order_id":          q.ID,
			"source_amount":     q.AmountIn.String(),
			"source_token":      q.SourceToken.Symbol,
			"dest_amount":       q.AmountOut.String(),
			"dest_token":        q.DestToken.Symbol,
			"gas_lamports":      q.Fees.GasLamports,
			"expires_at":        q.ExpiresAt.Format(time.RFC3339),
			"time_estimate_sec": q.EstimatedSeconds,
		}
		if q.Fees.GasTokenAmount != nil {
			output["gas_token_amount"] = q.Fees.GasTokenAmount.String()
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayQuote(q)
}

// quoteSponsorAddress asks the sponsor for its fee payer so the venue prices
// the gasless route. Quotes still work without it, just not sponsored.
func quoteSponsorAddress(ctx context.Context, cfg *config.Config, logger *zap.Logger) string {
	if cfg.Sponsor.BaseURL == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sc := sponsor.NewClient(cfg.Sponsor.BaseURL, cfg.Sponsor.APIKey, sponsor.WithClientLogger(logger))
	addr, err := sc.FeePayerAddress(ctx)
	if err != nil {
		logger.Debug("sponsor unreachable, quoting without sponsorship", zap.Error(err))
		return ""
	}
	return addr
}

func watchQuotes(ctx context.Context, v venue.Provider, params quote.SwapParams, s *spinner.Spinner, logger *zap.Logger) {
	events := make(chan quote.Event, 16)
	ctrl := quote.New(v, quote.Config{}, func(ev quote.Event) {
		select {
		case events <- ev:
		default:
		}
	}, logger)
	defer ctrl.Close()

	if err := ctrl.SetParams(params); err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			fmt.Println()
			return
		case ev := <-events:
			switch ev.Kind {
			case quote.EventQuote:
				s.Stop()
				displayQuote(ev.Quote)
			case quote.EventCountdown:
				fmt.Printf("\r  refreshing in %2.0fs ", ev.Remaining.Seconds())
			case quote.EventExpired:
				fmt.Println()
				color.Yellow("  quote expired, fetching a fresh one...")
			case quote.EventError:
				fmt.Println()
				color.Red("  ✗ %s", describeError(ev.Err))
				os.Exit(1)
			}
		}
	}
}
