package oracle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v4"

	"medvault/core/errs"
	"medvault/core/state"
	"medvault/types/ids"
)

// NativeStatement is the attestation statement id under which consumed
// native payment receipts are recorded.
const NativeStatement = "native"

// Purpose names what a native payment was made for.
type Purpose string

const (
	PurposeUpload  Purpose = "upload"
	PurposeDeposit Purpose = "deposit"
)

// ReceiptClaims is the body of a native payment receipt, signed by the
// payment gateway once the transfer has settled.
type ReceiptClaims struct {
	TxHash   string  `json:"tx"`
	Payer    string  `json:"from"`
	ValueWei string  `json:"value"`
	Purpose  Purpose `json:"purpose"`
	Patient  string  `json:"pid"`
	jwt.RegisteredClaims
}

// NativePayment is a verified receipt.
type NativePayment struct {
	TxHash  string
	Payer   common.Address
	Value   *big.Int
	Purpose Purpose
	Patient ids.ID
}

// ReceiptVerifier checks native payment receipts against the gateway keys.
type ReceiptVerifier struct {
	Keys   KeyProvider
	MaxAge time.Duration
	Now    func() time.Time
}

func (v *ReceiptVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify parses raw into a NativePayment. A missing key is an OracleError;
// anything wrong with the receipt itself is an InvalidProofError.
func (v *ReceiptVerifier) Verify(raw string) (NativePayment, error) {
	var keyErr error
	claims := &ReceiptClaims{}
	token, err := asymmetricParser.ParseWithClaims(raw, claims, keyFunc(v.Keys, &keyErr))
	if keyErr != nil {
		return NativePayment{}, errs.Oracle(errs.ReasonOracleUnavailable, keyErr)
	}
	if err != nil || !token.Valid {
		return NativePayment{}, errs.InvalidProof(errs.ReasonProofInvalid)
	}
	if v.MaxAge > 0 {
		if claims.IssuedAt == nil || v.now().Sub(claims.IssuedAt.Time) > v.MaxAge {
			return NativePayment{}, errs.InvalidProof(errs.ReasonProofInvalid)
		}
	}
	value, ok := new(big.Int).SetString(claims.ValueWei, 10)
	if claims.TxHash == "" || !common.IsHexAddress(claims.Payer) || !ok || value.Sign() < 0 {
		return NativePayment{}, errs.InvalidProof(errs.ReasonProofInvalid)
	}
	if claims.Purpose != PurposeUpload && claims.Purpose != PurposeDeposit {
		return NativePayment{}, errs.InvalidProof(errs.ReasonProofInvalid)
	}
	pid, err := ids.FromString(claims.Patient)
	if err != nil {
		return NativePayment{}, errs.InvalidProof(errs.ReasonProofInvalid)
	}
	return NativePayment{
		TxHash:  claims.TxHash,
		Payer:   common.HexToAddress(claims.Payer),
		Value:   value,
		Purpose: claims.Purpose,
		Patient: pid,
	}, nil
}

// ConsumeReceipt binds pay to the operation described by by and marks its
// transaction hash used. A receipt pays once, for its own payer, patient
// and purpose.
func (b *Bridge) ConsumeReceipt(tx *state.Tx, pay NativePayment, purpose Purpose, by Consumer) error {
	if pay.Purpose != purpose || pay.Payer != by.Caller || pay.Patient != by.Patient {
		return errs.InvalidProof(errs.ReasonReceiptMismatch)
	}
	_, used, err := tx.Attestation(NativeStatement, pay.TxHash)
	if err != nil {
		return err
	}
	if used {
		return errs.InvalidProof(errs.ReasonProofReplayed)
	}
	return tx.PutAttestation(state.AttestationRecord{
		StatementID: NativeStatement,
		ProofID:     pay.TxHash,
		Patient:     by.Patient,
		Kind:        by.Kind,
		ConsumedBy:  by.Caller,
		ConsumedAt:  b.now().UTC(),
	})
}
