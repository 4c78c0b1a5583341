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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gasless-swap/config"
	"gasless-swap/pkg/history"
	"gasless-swap/pkg/payout"
	"gasless-swap/pkg/tracker"
	"gasless-swap/pkg/types"
	"gasless-swap/pkg/venue"
)

var (
	watchStatus bool
	checkPayout bool
)

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Check the status of a swap order",
	Long: `Check the execution status of a swap order by its identifier.

Examples:
  gasless-swap status ord_1234abcd
  gasless-swap status ord_1234abcd --watch
  gasless-swap status ord_1234abcd --verify-payout`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the order reaches a final state")
	statusCmd.Flags().BoolVar(&checkPayout, "verify-payout", false, "Verify the payout transaction on the destination chain")
}

func runStatus(cmd *cobra.Command, args []string) {
	orderID := args[0]
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

	hist, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		hist = nil
	} else {
		defer hist.Close()
	}

	var info *types.OrderInfo
	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		info = watchOrder(ctx, v, orderID, logger)
	} else {
		info = fetchOrder(ctx, v, orderID, jsonOutput)
	}
	if info == nil {
		os.Exit(1)
	}

	if hist != nil {
		if err := hist.UpdateStatus(ctx, orderID, info.Status, info.DstTxHash); err != nil {
			logger.Debug("history update failed", zap.Error(err))
		}
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayOrder(info)

	if checkPayout && info.Status.Terminal() {
		verifyOrderPayout(ctx, cfg, info, logger)
	}
}

func fetchOrder(ctx context.Context, v venue.Provider, orderID string, jsonOutput bool) *types.OrderInfo {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking order status..."
		s.Start()
	}

	info, err := v.GetOrderStatus(ctx, orderID)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		return nil
	}
	return info
}

func watchOrder(ctx context.Context, v venue.Provider, orderID string, logger *zap.Logger) *types.OrderInfo {
	fmt.Printf("\nWatching order %s. Press Ctrl+C to stop.\n\n", color.CyanString(orderID))

	tr := tracker.New(v, tracker.Config{}, logger)
	result, err := tr.Track(ctx, orderID, func(info *types.OrderInfo, attempt int) {
		printOrderUpdate(info, attempt)
	})
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		return nil
	}

	if result.Outcome == tracker.OutcomeTimeout {
		color.Yellow("\nThe order did not settle within the polling window.")
	}
	return result.Order
}

func verifyOrderPayout(ctx context.Context, cfg *config.Config, info *types.OrderInfo, logger *zap.Logger) {
	if info.DstTxHash == "" {
		color.Yellow("\nNo payout transaction reported yet.")
		return
	}

	rpcURL := payoutRPCURL(cfg, info.DstChainID)
	if rpcURL == "" {
		color.Yellow("\nNo RPC endpoint configured for %s, cannot verify the payout.", info.DstChainID)
		fmt.Println("Add one under evm.networks in the config file.")
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Verifying payout on %s...", info.DstChainID)
	s.Start()

	ver, err := payout.NewVerifier(info.DstChainID, rpcURL, logger)
	if err != nil {
		s.Stop()
		color.Red("\n✗ %s\n", describeError(err))
		return
	}
	receipt, err := ver.VerifyPayout(ctx, info.DstTxHash)
	s.Stop()
	if err != nil {
		color.Red("\n✗ %s\n", describeError(err))
		return
	}

	fmt.Println("\n" + strings.Repeat("-", 70))
	switch {
	case !receipt.Confirmed:
		color.Yellow("  Payout %s is not confirmed on %s yet.", receipt.TxHash, info.DstChainID)
	case receipt.Success:
		color.Green("  ✓ Payout confirmed on %s", info.DstChainID)
		if receipt.BlockNumber > 0 {
			fmt.Printf("    Block: %d\n", receipt.BlockNumber)
		}
		if receipt.Slot > 0 {
			fmt.Printf("    Slot:  %d\n", receipt.Slot)
		}
	default:
		color.Red("  ✗ Payout transaction reverted on %s", info.DstChainID)
	}
	fmt.Println(strings.Repeat("-", 70))
}

// payoutRPCURL picks the RPC endpoint for the destination chain. Solana uses
// the main RPC config, EVM chains come from the evm.networks map.
func payoutRPCURL(cfg *config.Config, chainID string) string {
	kind, err := types.ChainTypeOf(chainID)
	if err != nil {
		return ""
	}
	if kind == types.ChainSolana {
		return cfg.Solana.RPCURL
	}
	return cfg.EVM.Networks[strings.ToLower(chainID)]
}
