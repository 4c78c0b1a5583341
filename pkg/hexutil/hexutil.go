// Package hexutil converts instruction data between hex strings and bytes.
// Venue APIs send instruction data as hex with or without a 0x prefix;
// odd-length or non-hex input is rejected rather than padded.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Decode parses a hex string into bytes. A single leading "0x" or "0X" is
// allowed. The empty string decodes to empty bytes.
func Decode(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	return b, nil
}

// Encode returns the lowercase hex encoding of b without a prefix.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Normalize round-trips a hex string through bytes, yielding the canonical
// lowercase unprefixed form.
func Normalize(s string) (string, error) {
	b, err := Decode(s)
	if err != nil {
		return "", err
	}
	return Encode(b), nil
}
