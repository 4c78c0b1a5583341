package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"gasless-swap/pkg/feecalc"
	"gasless-swap/pkg/types"
)

func displayQuote(q *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n",
		feecalc.FormatUnits(q.AmountIn, q.SourceToken.Decimals), color.YellowString(q.SourceToken.Symbol))
	fmt.Printf("  To:                ~%s %s\n",
		feecalc.FormatUnits(q.AmountOut, q.DestToken.Decimals), color.YellowString(q.DestToken.Symbol))
	if q.MinAmountOut != nil {
		fmt.Printf("  Minimum Received:  %s %s\n",
			feecalc.FormatUnits(q.MinAmountOut, q.DestToken.Decimals), q.DestToken.Symbol)
	}
	if q.SourceToken.ChainID != "" {
		fmt.Printf("  Source Chain:      %s\n", q.SourceToken.ChainID)
	}
	if q.DestToken.ChainID != "" {
		fmt.Printf("  Destination Chain: %s\n", q.DestToken.ChainID)
	}
	if q.DepositAddress != "" {
		fmt.Printf("  Deposit Address:   %s\n", color.CyanString(q.DepositAddress))
	}
	if q.EstimatedSeconds > 0 {
		fmt.Printf("  Estimated Time:    %d seconds\n", q.EstimatedSeconds)
	}

	displayFees(&q.Fees, q.SourceToken)

	fmt.Printf("\n  Quote expires at %s (%0.fs from now)\n",
		q.ExpiresAt.Format("15:04:05"), time.Until(q.ExpiresAt).Seconds())
	fmt.Println(strings.Repeat("=", 60))
}

func displayFees(fees *types.FeeBreakdown, feeToken types.Token) {
	fmt.Printf("\n  Fees (paid in %s, no native gas needed):\n", feeToken.Symbol)
	if fees.OperatingExpense != nil && fees.OperatingExpense.Sign() > 0 {
		fmt.Printf("    Operating expense: %s %s\n",
			feecalc.FormatUnits(fees.OperatingExpense, feeToken.Decimals), feeToken.Symbol)
	}
	if fees.NetworkFlatFee != nil && fees.NetworkFlatFee.Sign() > 0 {
		fmt.Printf("    Network flat fee:  %s %s\n",
			feecalc.FormatUnits(fees.NetworkFlatFee, feeToken.Decimals), feeToken.Symbol)
	}
	if fees.GasTokenAmount != nil && fees.GasTokenAmount.Sign() > 0 {
		fmt.Printf("    Gas reimbursement: %s %s\n",
			feecalc.FormatUnits(fees.GasTokenAmount, feeToken.Decimals), feeToken.Symbol)
	} else if fees.GasLamports > 0 {
		fmt.Printf("    Sponsored gas:     %d lamports (repaid in %s at execution)\n",
			fees.GasLamports, feeToken.Symbol)
	}
	if fees.Sponsored() {
		fmt.Printf("    %s\n", color.GreenString("Gas is sponsored, the swap is gasless for this wallet"))
	}
}

func displayOrder(info *types.OrderInfo) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order ID:        %s\n", color.CyanString(info.ID))
	fmt.Printf("  Status:          %s\n", coloredStatus(info.Status))
	if info.AmountIn != nil {
		fmt.Printf("  Amount In:       %s (smallest units)\n", info.AmountIn)
	}
	if info.AmountOut != nil {
		fmt.Printf("  Amount Out:      %s (smallest units)\n", info.AmountOut)
	}
	if info.SrcChainID != "" || info.DstChainID != "" {
		fmt.Printf("  Route:           %s -> %s\n", info.SrcChainID, info.DstChainID)
	}
	if info.SrcTxHash != "" {
		fmt.Printf("  Deposit Tx:      %s\n", color.HiBlackString(info.SrcTxHash))
	}
	if info.DstTxHash != "" {
		fmt.Printf("  Payout Tx:       %s\n", color.HiBlackString(info.DstTxHash))
	}
	if !info.UpdatedAt.IsZero() {
		fmt.Printf("  Last Updated:    %s\n", info.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
}

func coloredStatus(status types.OrderStatus) string {
	name := strings.ToUpper(string(status))
	switch status {
	case types.StatusCompleted, types.StatusFulfilled:
		return color.GreenString(name)
	case types.StatusPending, types.StatusCreated:
		return color.YellowString(name)
	case types.StatusFailed, types.StatusCancelled:
		return color.RedString(name)
	default:
		return name
	}
}

func printOrderUpdate(info *types.OrderInfo, attempt int) {
	fmt.Printf("  [%s] poll %2d: %s\n", time.Now().Format("15:04:05"), attempt, coloredStatus(info.Status))
}

// describeError prefixes the failure with its error class so users can
// tell a venue refusal from their own input or the network.
func describeError(err error) string {
	switch types.CodeOf(err) {
	case types.CodeInvalidInput:
		return fmt.Sprintf("invalid input: %v", err)
	case types.CodeVenue:
		return fmt.Sprintf("venue rejected the request: %v", err)
	case types.CodeSigning:
		return fmt.Sprintf("signing failed: %v", err)
	case types.CodeNetwork:
		return fmt.Sprintf("network problem: %v", err)
	case types.CodeOnChain:
		return fmt.Sprintf("transaction failed on chain: %v", err)
	default:
		return err.Error()
	}
}
