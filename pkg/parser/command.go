package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// SwapPhrase is the parsed form of "<amount> <token> to <token>".
type SwapPhrase struct {
	Amount      string
	SourceToken string
	DestToken   string
}

var phrasePattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)$`)

// ParseSwapPhrase parses a natural language swap phrase
// Examples:
//   - "swap 100 USDC to ETH"
//   - "1.5 SOL to USDC"
//   - "100 USDC to SOL"
func ParseSwapPhrase(command string) (*SwapPhrase, error) {
	// Normalize the phrase
	command = strings.TrimSpace(strings.ToUpper(command))

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	matches := phrasePattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap format. Expected: '<amount> <token> to <token>' (e.g., '100 USDC to ETH')")
	}

	return &SwapPhrase{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
	}, nil
}

// Validate checks that a parsed phrase has all required fields.
func (p *SwapPhrase) Validate() error {
	if p.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if p.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if p.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	return nil
}

// NormalizeTokenSymbol trims and uppercases a token symbol. Wrapped
// tokens stay distinct from their native forms since they are different
// assets with different mints.
func NormalizeTokenSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
