package sponsor

import "gasless-swap/pkg/types"

// SignRequest asks the sponsor to add its fee-payer signature to a
// base64-encoded transaction.
type SignRequest struct {
	Transaction string `json:"transaction"`
}

// SignResponse returns the same transaction with the sponsor signature in
// the fee-payer slot.
type SignResponse struct {
	SignedTransaction string `json:"signed_transaction"`
}

// AddressResponse carries the sponsor's fee-payer address.
type AddressResponse struct {
	Address string `json:"address"`
}

// EstimateRequest asks what a transaction costs, optionally converted into
// a fee token.
type EstimateRequest struct {
	Transaction string `json:"transaction"`
	// Token is the mint the estimate should be denominated in. Empty
	// returns lamports only.
	Token string `json:"token,omitempty"`
}

// EstimateResponse reports the network cost and, when a token was
// requested, the buffered in-token amount.
type EstimateResponse struct {
	Lamports    uint64 `json:"lamports"`
	Token       string `json:"token,omitempty"`
	TokenAmount string `json:"token_amount,omitempty"`
}

// TokensResponse lists the tokens the sponsor accepts fee payment in.
type TokensResponse struct {
	Tokens []types.Token `json:"tokens"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the JSON error envelope every endpoint uses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
