package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gasless-swap/config"
	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/parser"
	"gasless-swap/pkg/quote"
	"gasless-swap/pkg/swap"
	"gasless-swap/pkg/tracker"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
)

const sourceChainID = "solana"

var (
	toChain       string
	recipientAddr string
	refundAddr    string
	swapMemo      string
	noConfirm     bool
	noWait        bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Quote and execute a gasless cross-chain swap",
	Long: `Swap a Solana token for an asset on any supported chain. Network fees
are fronted by a sponsor wallet and repaid from the token being swapped,
so the source wallet needs no SOL.

IMPORTANT:
  - You MUST specify --recipient (where you'll receive tokens)
  - Quotes refresh automatically until you confirm; the displayed price
    can change while you decide

Examples:
  # Swap USDC on Solana for ETH on Ethereum
  gasless-swap swap 100 USDC to ETH --to-chain ethereum --recipient 0x123...

  # Same-chain swap, skip the confirmation prompt
  gasless-swap swap 25 USDC to JUP --recipient <solana-addr> --yes

  # Submit and exit without waiting for fulfilment
  gasless-swap swap 100 USDC to ETH --to-chain ethereum --recipient 0x123... --no-wait`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&toChain, "to-chain", sourceChainID, "Destination blockchain")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (REQUIRED - where you'll receive tokens)")
	swapCmd.Flags().StringVar(&refundAddr, "refund-to", "", "Refund address on Solana (defaults to your wallet)")
	swapCmd.Flags().StringVar(&swapMemo, "memo", "", "Memo to attach to the fee payment instruction")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit after submission instead of polling the order")
}

func runSwap(cmd *cobra.Command, args []string) {
	phrase, err := parser.ParseSwapPhrase(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if err := phrase.Validate(); err != nil {
		printError(err)
		os.Exit(1)
	}
	if recipientAddr == "" {
		printError(fmt.Errorf("--recipient is required (where you'll receive tokens)"))
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
		s.Suffix = " Resolving tokens..."
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
	dstToken, ok := findToken(tokens, phrase.DestToken, toChain)
	if !ok {
		s.Stop()
		printError(fmt.Errorf("token %s is not available on %s (try: gasless-swap tokens)", phrase.DestToken, toChain))
		os.Exit(1)
	}

	amountIn, err := feecalc.SmallestUnits(phrase.Amount, srcToken.Decimals)
	if err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}

	events := make(chan quote.Event, 16)
	ctrl := quote.New(v, quote.Config{}, func(ev quote.Event) {
		select {
		case events <- ev:
		default:
		}
	}, logger)
	defer ctrl.Close()

	p, err := newPipeline(ctx, cfg, v, ctrl, logger)
	if err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}
	defer p.Close()

	refund := refundAddr
	if refund == "" {
		refund = p.wallet.PublicKey().String()
	}

	if jsonOutput {
		s.Stop()
		req := &types.OrderRequest{
			SourceToken:    srcToken,
			DestToken:      dstToken,
			AmountIn:       amountIn,
			Recipient:      recipientAddr,
			RefundTo:       refund,
			SlippageBps:    cfg.Venue.SlippageBps,
			SponsorAddress: p.feePayer.String(),
			ClientRef:      uuid.New().String(),
		}
		runSwapJSON(ctx, p, v, req)
		return
	}

	s.Suffix = " Fetching quote..."
	err = ctrl.SetParams(quote.SwapParams{
		SourceToken:    srcToken,
		DestToken:      dstToken,
		Amount:         phrase.Amount,
		Recipient:      recipientAddr,
		RefundTo:       refund,
		SlippageBps:    cfg.Venue.SlippageBps,
		SponsorAddress: p.feePayer.String(),
	})
	if err != nil {
		s.Stop()
		printError(err)
		os.Exit(1)
	}

	accepted, err := interactiveQuote(ctx, events, s)
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		os.Exit(1)
	}
	if accepted == nil {
		fmt.Println("\nSwap cancelled.")
		return
	}

	// Confirmation can outlive a quote; take the freshest one the
	// controller holds before executing.
	if q := ctrl.Current(); q != nil {
		accepted = q
	}

	executeSwap(ctx, p, ctrl, events, accepted, s)
}

// interactiveQuote drives the quote display loop until the user answers the
// confirmation prompt, the quoting fails, or the context ends. A nil quote
// with a nil error means the user declined.
func interactiveQuote(ctx context.Context, events <-chan quote.Event, s *spinner.Spinner) (*types.Quote, error) {
	answers := make(chan bool, 1)
	prompting := false
	var current *types.Quote

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil, ctx.Err()

		case yes := <-answers:
			if !yes {
				return nil, nil
			}
			return current, nil

		case ev := <-events:
			switch ev.Kind {
			case quote.EventQuote:
				if !prompting {
					s.Stop()
					current = ev.Quote
					displayQuote(current)
					if noConfirm {
						return current, nil
					}
					prompting = true
					go func() { answers <- confirmSwap() }()
					continue
				}
				current = ev.Quote
				fmt.Printf("\n  price updated: ~%s %s (expires %s)\n",
					feecalc.FormatUnits(ev.Quote.AmountOut, ev.Quote.DestToken.Decimals),
					ev.Quote.DestToken.Symbol, ev.Quote.ExpiresAt.Format("15:04:05"))

			case quote.EventExpired:
				color.Yellow("\n  quote expired, fetching a fresh one...")

			case quote.EventError:
				s.Stop()
				return nil, ev.Err

			case quote.EventCountdown:
				// The prompt owns the terminal; per-second ticks
				// would clobber it.
			}
		}
	}
}

func executeSwap(ctx context.Context, p *pipeline, ctrl *quote.Controller, events <-chan quote.Event, q *types.Quote, s *spinner.Spinner) {
	s.Suffix = " Signing and submitting gasless transaction..."
	s.Start()

	opts := swap.Options{
		Memo:      swapMemo,
		Recipient: recipientAddr,
		Watch:     !noWait,
		OnOrderUpdate: func(info *types.OrderInfo, attempt int) {
			if s.Active() {
				s.Stop()
				color.Green("\n✓ Transaction confirmed, waiting for the venue to fulfil the order")
			}
			printOrderUpdate(info, attempt)
		},
	}

	result, err := p.executor.Execute(ctx, q, opts)
	if errors.Is(err, swap.ErrQuoteExpired) {
		// The controller auto-refreshes near expiry; pick up the
		// replacement quote and retry once.
		if fresh := freshQuote(ctx, ctrl, events, 10*time.Second); fresh != nil {
			result, err = p.executor.Execute(ctx, fresh, opts)
		}
	}
	s.Stop()

	if err != nil {
		if result != nil && !result.Signature.IsZero() {
			color.Yellow("\nTransaction %s was submitted before the failure.", result.Signature)
			fmt.Printf("Check progress with: gasless-swap status %s\n", result.OrderID)
		}
		color.Red("\n✗ %s\n", describeError(err))
		os.Exit(1)
	}

	displaySwapResult(result, q)
}

func runSwapJSON(ctx context.Context, p *pipeline, v venue.Provider, req *types.OrderRequest) {
	q, err := v.CreateOrder(ctx, req)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	output := map[string]interface{}{
		"order_id":          q.ID,
		"source_amount":     q.AmountIn.String(),
		"source_token":      q.SourceToken.Symbol,
		"dest_amount":       q.AmountOut.String(),
		"dest_token":        q.DestToken.Symbol,
		"gas_lamports":      q.Fees.GasLamports,
		"expires_at":        q.ExpiresAt.Format(time.RFC3339),
		"time_estimate_sec": q.EstimatedSeconds,
		"status":            "quote_generated",
	}

	if noConfirm {
		result, err := p.executor.Execute(ctx, q, swap.Options{
			Memo:      swapMemo,
			Recipient: recipientAddr,
			Watch:     !noWait,
		})
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		output["status"] = "submitted"
		output["signature"] = result.Signature.String()
		if result.FeePaid != nil {
			output["fee_paid"] = result.FeePaid.String()
		}
		if result.Tracking != nil && result.Tracking.Order != nil {
			output["order_status"] = string(result.Tracking.Order.Status)
		}
	}

	jsonData, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(jsonData))
}

// freshQuote returns the controller's current live quote, waiting up to the
// given duration for a refresh when the held one has expired.
func freshQuote(ctx context.Context, ctrl *quote.Controller, events <-chan quote.Event, wait time.Duration) *types.Quote {
	if q := ctrl.Current(); q != nil && q.TTL(time.Now()) > 0 {
		return q
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case ev := <-events:
			if ev.Kind == quote.EventQuote {
				return ev.Quote
			}
		}
	}
}

func displaySwapResult(res *swap.Result, q *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   SWAP SUBMITTED")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Order ID:     %s\n", color.CyanString(res.OrderID))
	fmt.Printf("  Signature:    %s\n", res.Signature)
	if res.Receipt != nil {
		fmt.Printf("  Slot:         %d\n", res.Receipt.Slot)
	}
	if res.FeePaid != nil {
		fmt.Printf("  Fee Paid:     %s %s (covers %d lamports of gas)\n",
			feecalc.FormatUnits(res.FeePaid, q.SourceToken.Decimals), q.SourceToken.Symbol, res.GasLamports)
	}

	if res.Tracking != nil {
		switch res.Tracking.Outcome {
		case tracker.OutcomeTerminal:
			fmt.Printf("  Final Status: %s\n", coloredStatus(res.Tracking.Order.Status))
			if res.Tracking.Order.DstTxHash != "" {
				fmt.Printf("  Payout Tx:    %s\n", res.Tracking.Order.DstTxHash)
			}
		case tracker.OutcomeTimeout:
			color.Yellow("  Tracking timed out before the order settled.")
			fmt.Printf("  Check later with: gasless-swap status %s\n", res.OrderID)
		}
	} else {
		fmt.Println("\nYou can monitor the swap status using:")
		color.Cyan("  gasless-swap status %s\n", res.OrderID)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func findToken(tokens []types.Token, symbol, chainID string) (types.Token, bool) {
	want := parser.NormalizeTokenSymbol(symbol)
	for _, t := range tokens {
		if strings.EqualFold(t.ChainID, chainID) && parser.NormalizeTokenSymbol(t.Symbol) == want {
			return t, true
		}
	}
	return types.Token{}, false
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
