package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gasless-swap/config"
	"gasless-swap/pkg/sponsor"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
)

var (
	filterChain   string
	filterSymbol  string
	sponsorTokens bool
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens the venue can quote, grouped by blockchain.

With --sponsor, list the tokens the sponsor accepts as fee payment
instead.

Examples:
  gasless-swap tokens
  gasless-swap tokens --chain solana
  gasless-swap tokens --symbol USDC
  gasless-swap tokens --sponsor`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by blockchain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&sponsorTokens, "sponsor", false, "List the sponsor's accepted fee tokens instead")
}

func runListTokens(cmd *cobra.Command, args []string) {
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

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching supported tokens..."
		s.Start()
	}

	var tokens []types.Token
	if sponsorTokens {
		sc := sponsor.NewClient(cfg.Sponsor.BaseURL, cfg.Sponsor.APIKey, sponsor.WithClientLogger(logger))
		tokens, err = sc.SupportedTokens(ctx)
	} else {
		var v venue.Provider
		v, err = buildVenue(cfg, logger)
		if err == nil {
			tokens, err = v.GetTokens(ctx)
		}
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	filtered := tokens
	if filterChain != "" {
		var temp []types.Token
		for _, token := range filtered {
			if strings.EqualFold(token.ChainID, filterChain) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if filterSymbol != "" {
		var temp []types.Token
		for _, token := range filtered {
			if strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(filtered, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(filtered)
	}
}

func displayTokens(tokens []types.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	tokensByChain := make(map[string][]types.Token)
	for _, token := range tokens {
		tokensByChain[token.ChainID] = append(tokensByChain[token.ChainID], token)
	}

	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		chainTokens := tokensByChain[chain]
		sort.Slice(chainTokens, func(i, j int) bool {
			return chainTokens[i].Symbol < chainTokens[j].Symbol
		})
		for _, token := range chainTokens {
			address := token.Address
			if len(address) > 40 {
				address = address[:37] + "..."
			}

			notes := ""
			if token.TransferFee != nil {
				notes = color.MagentaString(" transfer-fee")
			}
			if token.RequiresMemo {
				notes += color.MagentaString(" memo-required")
			}

			fmt.Printf("  %-10s  %2d decimals  %s%s\n",
				color.YellowString(token.Symbol),
				token.Decimals,
				color.HiBlackString(address),
				notes)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d blockchains\n\n", len(tokens), len(chains))
}
