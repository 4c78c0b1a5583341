package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gasless-swap",
	Short: "A CLI for gasless cross-chain swaps paid for in the token being swapped",
	Long: `gasless-swap is a command-line tool for cross-chain token swaps where a
sponsor service fronts the network fees. You pay the sponsor back in the
token you are swapping, so a wallet holding only USDC can still move it
across chains without ever owning SOL.

Examples:
  gasless-swap quote 100 USDC to ETH --to-chain ethereum --recipient 0x123...
  gasless-swap swap 100 USDC to ETH --to-chain ethereum --recipient 0x123...
  gasless-swap tokens
  gasless-swap status <order-id>
  gasless-swap history
  gasless-swap sponsor serve`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
