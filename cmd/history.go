package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gasless-swap/config"
	"gasless-swap/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [order-id]",
	Short: "Show locally recorded swaps",
	Long: `List swaps submitted from this machine, newest first. Pass an order id
to show the full record for one swap.

Examples:
  gasless-swap history
  gasless-swap history --limit 50
  gasless-swap history ord_1234abcd`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of swaps to list")
}

func runHistory(cmd *cobra.Command, args []string) {
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

	store, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		printError(fmt.Errorf("cannot open swap history at %s: %w", cfg.History.Path, err))
		os.Exit(1)
	}
	defer store.Close()

	if len(args) == 1 {
		rec, err := store.Get(ctx, args[0])
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if rec == nil {
			printError(fmt.Errorf("no local record for order %s", args[0]))
			os.Exit(1)
		}
		if jsonOutput {
			jsonData, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(jsonData))
			return
		}
		displayHistoryRecord(rec)
		return
	}

	records, err := store.List(ctx, historyLimit)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayHistoryList(records)
}

func displayHistoryList(records []*history.Record) {
	if len(records) == 0 {
		fmt.Println("\nNo swaps recorded yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                    SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 100))
	fmt.Println()

	for _, rec := range records {
		fmt.Printf("  %s  %-10s  %s %s -> %s %s  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			coloredStatus(rec.Status),
			rec.AmountIn, color.YellowString(rec.SrcSymbol),
			rec.AmountOut, color.YellowString(rec.DstSymbol),
			color.HiBlackString(rec.OrderID))
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nTotal: %d swaps. Run 'gasless-swap history <order-id>' for details.\n\n", len(records))
}

func displayHistoryRecord(rec *history.Record) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP RECORD")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order ID:        %s\n", color.CyanString(rec.OrderID))
	fmt.Printf("  Status:          %s\n", coloredStatus(rec.Status))
	fmt.Printf("  Route:           %s -> %s\n", rec.SrcChainID, rec.DstChainID)
	fmt.Printf("  Amount In:       %s %s\n", rec.AmountIn, rec.SrcSymbol)
	fmt.Printf("  Amount Out:      %s %s\n", rec.AmountOut, rec.DstSymbol)
	if rec.FeeTokenAmount != "" {
		fmt.Printf("  Fee Paid:        %s %s (covered %d lamports of gas)\n",
			rec.FeeTokenAmount, rec.SrcSymbol, rec.GasLamports)
	}
	if rec.Recipient != "" {
		fmt.Printf("  Recipient:       %s\n", rec.Recipient)
	}
	if rec.DepositAddress != "" {
		fmt.Printf("  Deposit Address: %s\n", rec.DepositAddress)
	}
	if rec.SrcTxHash != "" {
		fmt.Printf("  Source Tx:       %s\n", color.HiBlackString(rec.SrcTxHash))
	}
	if rec.DstTxHash != "" {
		fmt.Printf("  Payout Tx:       %s\n", color.HiBlackString(rec.DstTxHash))
	}
	fmt.Printf("  Created:         %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:         %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))

	if !rec.Status.Terminal() {
		fmt.Println("\nThis order has not settled. Refresh it with:")
		color.Cyan("  gasless-swap status %s\n", rec.OrderID)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
}
