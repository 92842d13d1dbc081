// Package types holds the JSON bodies exchanged by the API server and its
// client.
package types

import (
	"medvault/core/state"
)

type AddressRequest struct {
	Address string `json:"address"`
}

type SelfUploadRequest struct {
	Patient string `json:"patient"`
	Enabled bool   `json:"enabled"`
}

type GrantsRequest struct {
	Accessors []string `json:"accessors"`
	Allowed   bool     `json:"allowed"`
}

type UploadRequest struct {
	PointerURI string `json:"pointerUri"`
}

// UploadNativeRequest carries the gateway receipt for a settled native
// payment. The paid value is read from the receipt.
type UploadNativeRequest struct {
	PointerURI string `json:"pointerUri"`
	Receipt    string `json:"receipt"`
}

// UploadXRPLRequest carries an attested XRP Ledger payment. Proof is the
// attestation as issued by the verifier (a compact JWS).
type UploadXRPLRequest struct {
	PointerURI  string `json:"pointerUri"`
	Proof       string `json:"proof"`
	StatementID string `json:"statementId"`
	ProofID     string `json:"proofId"`
	PaidDrops   uint64 `json:"paidDrops"`
}

type DepositRequest struct {
	Receipt string `json:"receipt"`
}

type AccessFeeRequest struct {
	FeeWei    string `json:"feeWei"`
	Collector string `json:"collector"`
}

type UploadFeesRequest struct {
	FeeWei    string `json:"feeWei"`
	USDCents  uint64 `json:"usdCents"`
	Collector string `json:"collector"`
}

type StalenessRequest struct {
	Seconds uint64 `json:"seconds"`
}

type WithdrawRequest struct {
	To        string `json:"to"`
	AmountWei string `json:"amountWei"`
}

type ReadResponse struct {
	Record       state.DocumentEntry `json:"record"`
	Insurer      string              `json:"insurer"`
	FeeWei       string              `json:"feeWei"`
	RemainingWei string              `json:"remainingWei"`
}

type DepositResponse struct {
	Insurer    string `json:"insurer"`
	BalanceWei string `json:"balanceWei"`
}

type BalanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorDetail struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}
