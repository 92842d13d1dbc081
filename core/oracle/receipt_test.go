package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/errs"
	"medvault/core/state"
)

func receiptKeys(t *testing.T) (*Issuer, *ReceiptVerifier) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	now := func() time.Time { return clock }
	return &Issuer{Key: priv, Now: now},
		&ReceiptVerifier{Keys: NewStaticKeyProvider(pub), MaxAge: time.Hour, Now: now}
}

func TestReceiptVerify(t *testing.T) {
	iss, v := receiptKeys(t)
	jws, err := iss.IssueReceipt("0xabc", uploader, big.NewInt(5_000), PurposeUpload, patient)
	require.NoError(t, err)

	pay, err := v.Verify(jws)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", pay.TxHash)
	assert.Equal(t, uploader, pay.Payer)
	assert.Equal(t, int64(5_000), pay.Value.Int64())
	assert.Equal(t, PurposeUpload, pay.Purpose)
	assert.Equal(t, patient, pay.Patient)
}

func TestReceiptVerifyRejects(t *testing.T) {
	iss, v := receiptKeys(t)
	_, other := receiptKeys(t)

	jws, err := iss.IssueReceipt("0xabc", uploader, big.NewInt(1), PurposeDeposit, patient)
	require.NoError(t, err)

	_, err = other.Verify(jws)
	assert.ErrorIs(t, err, errs.InvalidProof(errs.ReasonProofInvalid), "foreign signer")

	_, err = v.Verify(jws + "x")
	assert.ErrorIs(t, err, errs.InvalidProof(errs.ReasonProofInvalid), "tampered")

	_, err = v.Verify(`{"tx":"0xabc","value":"1000000"}`)
	assert.ErrorIs(t, err, errs.InvalidProof(errs.ReasonProofInvalid), "unsigned claim")

	late := *v
	late.Now = func() time.Time { return clock.Add(2 * time.Hour) }
	_, err = late.Verify(jws)
	assert.ErrorIs(t, err, errs.InvalidProof(errs.ReasonProofInvalid), "expired")

	_, err = (&ReceiptVerifier{Keys: NewStaticKeyProvider(nil)}).Verify(jws)
	assert.ErrorIs(t, err, errs.ErrOracle, "no key")
}

func TestConsumeReceipt(t *testing.T) {
	f := newFixture(t)
	pay := NativePayment{TxHash: "0xabc", Payer: uploader, Value: big.NewInt(1_000), Purpose: PurposeUpload, Patient: patient}
	by := Consumer{Caller: uploader, Patient: patient, Kind: state.Diagnosis}

	assert.ErrorIs(t, f.bridge.ConsumeReceipt(f.tx, pay, PurposeDeposit, by), errs.InvalidProof(errs.ReasonReceiptMismatch))
	assert.ErrorIs(t, f.bridge.ConsumeReceipt(f.tx, pay, PurposeUpload, Consumer{Caller: collector, Patient: patient}), errs.InvalidProof(errs.ReasonReceiptMismatch))

	require.NoError(t, f.bridge.ConsumeReceipt(f.tx, pay, PurposeUpload, by))
	rec, used, err := f.tx.Attestation(NativeStatement, "0xabc")
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, uploader, rec.ConsumedBy)

	assert.ErrorIs(t, f.bridge.ConsumeReceipt(f.tx, pay, PurposeUpload, by), errs.InvalidProof(errs.ReasonProofReplayed))
}
