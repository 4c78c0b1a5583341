package types

import (
	"fmt"
	"math/big"
	"time"
)

// ChainType tags which transaction model a chain uses.
type ChainType string

const (
	ChainSolana ChainType = "solana"
	ChainEVM    ChainType = "evm"
)

// evmChains lists the EVM chain identifiers the venue quotes against.
var evmChains = map[string]bool{
	"ethereum":  true,
	"base":      true,
	"arbitrum":  true,
	"optimism":  true,
	"polygon":   true,
	"bsc":       true,
	"avalanche": true,
}

// ChainTypeOf maps a chain identifier to its transaction model.
func ChainTypeOf(chainID string) (ChainType, error) {
	if chainID == "solana" {
		return ChainSolana, nil
	}
	if evmChains[chainID] {
		return ChainEVM, nil
	}
	return "", fmt.Errorf("unknown chain %q", chainID)
}

// TransferFeeConfig describes a fee-charging token: a basis-points rate
// deducted from every transfer, capped at MaximumFee.
type TransferFeeConfig struct {
	BasisPoints uint16
	MaximumFee  *big.Int
}

// Validate rejects configs that cannot produce a finite gross amount.
func (c *TransferFeeConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.BasisPoints >= 10000 {
		return fmt.Errorf("transfer fee basis points %d must be below 10000", c.BasisPoints)
	}
	if c.MaximumFee == nil || c.MaximumFee.Sign() < 0 {
		return fmt.Errorf("transfer fee maximum must be a non-negative amount")
	}
	return nil
}

// Token identifies a swappable asset on a specific chain.
type Token struct {
	AssetID      string
	Symbol       string
	ChainID      string
	Address      string
	Decimals     uint8
	TokenProgram string
	TransferFee  *TransferFeeConfig
	RequiresMemo bool
}

// FeeBreakdown itemizes the cost of a quote. Amounts are smallest units of
// the source token except NetworkFlatFee and GasLamports, which are native.
type FeeBreakdown struct {
	OperatingExpense *big.Int
	NetworkFlatFee   *big.Int
	GasLamports      uint64
	GasTokenAmount   *big.Int
}

// Sponsored reports whether the quote routes network fees through a
// fee payer reimbursed in the source token.
func (f *FeeBreakdown) Sponsored() bool {
	return f.GasTokenAmount != nil && f.GasTokenAmount.Sign() > 0
}

// Validate enforces that sponsored quotes carry no flat native fee.
func (f *FeeBreakdown) Validate() error {
	if f.Sponsored() && f.NetworkFlatFee != nil && f.NetworkFlatFee.Sign() != 0 {
		return fmt.Errorf("sponsored quote must not carry a flat native fee, got %s", f.NetworkFlatFee)
	}
	return nil
}

// PayloadKind selects which variant of a TransactionPayload is populated.
type PayloadKind string

const (
	PayloadSerializedTx    PayloadKind = "serialized-tx"
	PayloadInstructionList PayloadKind = "instruction-list"
)

// InstructionAccount is one account reference inside an instruction
// descriptor, with its signer and writable flags.
type InstructionAccount struct {
	Address  string `json:"address"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// InstructionDescriptor is a chain-agnostic instruction: a program target,
// ordered account references and opaque hex-encoded data.
type InstructionDescriptor struct {
	ProgramID string               `json:"programId"`
	Accounts  []InstructionAccount `json:"accounts"`
	DataHex   string               `json:"data"`
}

// TransactionPayload is the venue-supplied half of a swap transaction:
// either a fully serialized transaction or a raw instruction list, never
// both.
type TransactionPayload struct {
	Kind         PayloadKind
	ChainType    ChainType
	SerializedTx string
	Instructions []InstructionDescriptor
}

// Validate checks that exactly one payload variant is populated.
func (p *TransactionPayload) Validate() error {
	switch p.Kind {
	case PayloadSerializedTx:
		if p.SerializedTx == "" {
			return fmt.Errorf("serialized-tx payload is empty")
		}
		if len(p.Instructions) != 0 {
			return fmt.Errorf("serialized-tx payload must not carry instructions")
		}
	case PayloadInstructionList:
		if p.SerializedTx != "" {
			return fmt.Errorf("instruction-list payload must not carry a serialized transaction")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

// Quote is an immutable venue offer: amounts, fees, expiry and the
// transaction payload to execute it. Expired quotes are refetched, never
// patched.
type Quote struct {
	ID               string
	SourceToken      Token
	DestToken        Token
	AmountIn         *big.Int
	AmountOut        *big.Int
	MinAmountOut     *big.Int
	Fees             FeeBreakdown
	EstimatedSeconds int
	CreatedAt        time.Time
	ExpiresAt        time.Time
	DepositAddress   string
	Payload          TransactionPayload
}

// Validate checks the construction-time invariants of a quote.
func (q *Quote) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quote has no identifier")
	}
	if q.AmountIn == nil || q.AmountIn.Sign() <= 0 {
		return fmt.Errorf("quote amount in must be positive")
	}
	if q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
		return fmt.Errorf("quote amount out must be positive")
	}
	if !q.ExpiresAt.After(q.CreatedAt) {
		return fmt.Errorf("quote expiry %s is not after creation %s", q.ExpiresAt, q.CreatedAt)
	}
	if err := q.Fees.Validate(); err != nil {
		return err
	}
	return q.Payload.Validate()
}

// TTL returns the remaining lifetime of the quote at the given instant.
func (q *Quote) TTL(now time.Time) time.Duration {
	return q.ExpiresAt.Sub(now)
}

// OrderRequest carries the parameters of a quote request to the venue.
type OrderRequest struct {
	SourceToken    Token
	DestToken      Token
	AmountIn       *big.Int
	Recipient      string
	RefundTo       string
	SlippageBps    uint16
	SponsorAddress string
	ClientRef      string
	Deadline       time.Time
}

// Validate checks the request is structurally complete. Chain-specific
// address validation happens in the quote controller.
func (r *OrderRequest) Validate() error {
	if r.SourceToken.AssetID == "" || r.DestToken.AssetID == "" {
		return fmt.Errorf("order request missing token identifiers")
	}
	if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
		return fmt.Errorf("order request amount must be positive")
	}
	if r.Recipient == "" {
		return fmt.Errorf("order request missing recipient")
	}
	return nil
}

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCreated   OrderStatus = "created"
	StatusFulfilled OrderStatus = "fulfilled"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusFailed    OrderStatus = "failed"
)

// Terminal reports whether polling should stop at this status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known states.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCreated, StatusFulfilled, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// OrderInfo is a point-in-time view of an order's progress.
type OrderInfo struct {
	ID         string
	Status     OrderStatus
	AmountIn   *big.Int
	AmountOut  *big.Int
	SrcChainID string
	DstChainID string
	SrcTxHash  string
	DstTxHash  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PreparedInstructionSet is a fully ordered, chain-tagged instruction list
// ready to be compiled into a transaction. Sets are built fresh for every
// execution attempt and never reused across blockhashes.
type PreparedInstructionSet struct {
	ChainType    ChainType
	FeePayer     string
	ComputeUnits uint32
	Instructions []InstructionDescriptor
}
