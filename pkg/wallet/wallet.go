// Package wallet holds the user-side signer of the dual-signing flow. The
// sponsor signature always lands first; wallets sign with PartialSign so
// they never clobber it.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrUserRejected is returned when the user declines to sign.
var ErrUserRejected = errors.New("user rejected signing")

// Wallet signs transactions on the user's behalf.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// LocalWallet signs with an in-process keypair.
type LocalWallet struct {
	key solana.PrivateKey
}

// NewLocalWallet parses a secret key given as base58 or as a JSON byte
// array (solana-keygen format).
func NewLocalWallet(secret string) (*LocalWallet, error) {
	key, err := parsePrivateKey(secret)
	if err != nil {
		return nil, err
	}
	return &LocalWallet{key: key}, nil
}

// LoadKeypairFile reads a keypair file in either supported encoding.
func LoadKeypairFile(path string) (*LocalWallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	return NewLocalWallet(strings.TrimSpace(string(raw)))
}

// PublicKey returns the wallet's address.
func (w *LocalWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// SignTransaction adds the wallet's signature, leaving other required
// signatures untouched.
func (w *LocalWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

// parsePrivateKey accepts a base58-encoded 64-byte key or a JSON array of
// byte values.
func parsePrivateKey(secret string) (solana.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("private key is empty")
	}

	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse JSON keypair: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return solana.PrivateKey(b), nil
	}

	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(raw), nil
}
