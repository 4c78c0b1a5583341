// Package signing coordinates the two-signature flow of a sponsored
// transaction. The sponsor signs first so the user only ever commits to a
// transaction the sponsor has already agreed to pay for; the user signature
// is added second and the result goes straight to the RPC node.
package signing

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"gasless-swap/pkg/types"
	"gasless-swap/pkg/wallet"
)

const (
	defaultConfirmInterval = 2 * time.Second
	defaultConfirmAttempts = 30
)

// SponsorSigner obtains the fee-payer signature. Implemented by
// sponsor.Client.
type SponsorSigner interface {
	SignTransaction(ctx context.Context, txBase64 string) (string, error)
}

// TxStatus is one observation of a submitted transaction.
type TxStatus struct {
	Confirmed bool
	Slot      uint64
	// ExecutionErr is set when the cluster executed the transaction and it
	// failed.
	ExecutionErr error
}

// Submitter sends transactions and reports their status. Implemented by
// RPCSubmitter.
type Submitter interface {
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Status(ctx context.Context, sig solana.Signature) (TxStatus, error)
}

// Config sizes the confirmation loop.
type Config struct {
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

func (c *Config) fill() {
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = defaultConfirmInterval
	}
	if c.ConfirmAttempts <= 0 {
		c.ConfirmAttempts = defaultConfirmAttempts
	}
}

// Receipt reports a confirmed submission.
type Receipt struct {
	Signature   solana.Signature
	Slot        uint64
	SubmittedAt time.Time
	ConfirmedAt time.Time
}

// Coordinator runs one sponsored signing flow at a time.
type Coordinator struct {
	sponsor   SponsorSigner
	submitter Submitter
	cfg       Config
	logger    *zap.Logger
	inFlight  atomic.Bool
}

// New returns a coordinator.
func New(sponsor SponsorSigner, submitter Submitter, cfg Config, logger *zap.Logger) *Coordinator {
	cfg.fill()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sponsor:   sponsor,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger.With(zap.String("module", "signing")),
	}
}

// Execute obtains the sponsor signature, adds the user signature, submits,
// and waits for confirmation. Only one execution may be in flight; a
// second call fails immediately with ErrExecutionInFlight.
func (c *Coordinator) Execute(ctx context.Context, tx *solana.Transaction, user wallet.Wallet) (*Receipt, error) {
	const op = "signing.Execute"

	if tx == nil || len(tx.Message.AccountKeys) == 0 {
		return nil, types.E(types.CodeInvalidInput, op, fmt.Errorf("transaction is empty"))
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, types.E(types.CodeInvalidInput, op, ErrExecutionInFlight)
	}
	defer c.inFlight.Store(false)

	feePayer := tx.Message.AccountKeys[0]
	wantMessage, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, types.E(types.CodeInternal, op, err)
	}
	unsigned, err := tx.MarshalBinary()
	if err != nil {
		return nil, types.E(types.CodeInternal, op, err)
	}

	c.logger.Debug("requesting sponsor signature", zap.String("fee_payer", feePayer.String()))
	signedBase64, err := c.sponsor.SignTransaction(ctx, base64.StdEncoding.EncodeToString(unsigned))
	if err != nil {
		return nil, err
	}

	signedTx, err := c.verifySponsorResponse(signedBase64, feePayer, wantMessage)
	if err != nil {
		return nil, types.E(types.CodeSigning, op, err)
	}

	c.logger.Debug("adding user signature")
	if err := user.SignTransaction(ctx, signedTx); err != nil {
		return nil, types.E(types.CodeSigning, op, fmt.Errorf("user signing failed: %w", err))
	}
	if err := verifyComplete(signedTx); err != nil {
		return nil, types.E(types.CodeSigning, op, err)
	}

	submittedAt := time.Now()
	sig, err := c.submitter.Submit(ctx, signedTx)
	if err != nil {
		return nil, types.E(classifySubmitError(err), op, fmt.Errorf("submission failed: %w", err))
	}
	c.logger.Info("transaction submitted", zap.String("signature", sig.String()))

	receipt, err := c.awaitConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	receipt.SubmittedAt = submittedAt
	return receipt, nil
}

// verifySponsorResponse checks that the sponsor signed what we sent: same
// message bytes, same fee payer, and a non-empty signature in slot zero.
func (c *Coordinator) verifySponsorResponse(signedBase64 string, feePayer solana.PublicKey, wantMessage []byte) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(signedBase64)
	if err != nil {
		return nil, fmt.Errorf("sponsor returned invalid base64: %w", err)
	}
	signedTx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("sponsor returned an undecodable transaction: %w", err)
	}
	if len(signedTx.Message.AccountKeys) == 0 || !signedTx.Message.AccountKeys[0].Equals(feePayer) {
		return nil, ErrFeePayerChanged
	}
	gotMessage, err := signedTx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(gotMessage) != len(wantMessage) || string(gotMessage) != string(wantMessage) {
		return nil, ErrTransactionMutated
	}
	if len(signedTx.Signatures) == 0 || signedTx.Signatures[0].IsZero() {
		return nil, ErrSponsorSignatureMissing
	}
	return signedTx, nil
}

// verifyComplete ensures every required signature slot is filled before
// submission.
func verifyComplete(tx *solana.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required {
		return fmt.Errorf("%w: have %d of %d", ErrIncompleteSignatures, len(tx.Signatures), required)
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("%w: slot %d is unsigned", ErrIncompleteSignatures, i)
		}
	}
	return nil
}

// awaitConfirmation polls signature status on a fixed interval for a
// bounded number of attempts. Transport errors are transient and consume
// an attempt.
func (c *Coordinator) awaitConfirmation(ctx context.Context, sig solana.Signature) (*Receipt, error) {
	const op = "signing.awaitConfirmation"

	ticker := time.NewTicker(c.cfg.ConfirmInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.ConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, types.E(types.CodeNetwork, op, ctx.Err())
		case <-ticker.C:
		}

		status, err := c.submitter.Status(ctx, sig)
		if err != nil {
			c.logger.Debug("status poll failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if status.ExecutionErr != nil {
			return nil, types.E(types.CodeOnChain, op,
				fmt.Errorf("transaction failed on chain: %w", status.ExecutionErr))
		}
		if status.Confirmed {
			c.logger.Info("transaction confirmed",
				zap.String("signature", sig.String()), zap.Uint64("slot", status.Slot))
			return &Receipt{Signature: sig, Slot: status.Slot, ConfirmedAt: time.Now()}, nil
		}
	}
	return nil, types.E(types.CodeNetwork, op,
		fmt.Errorf("%w after %d attempts, transaction %s may still land", ErrConfirmationTimeout, c.cfg.ConfirmAttempts, sig))
}
