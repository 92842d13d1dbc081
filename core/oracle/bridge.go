package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/billing"
	"medvault/core/documents"
	"medvault/core/errs"
	"medvault/core/state"
	"medvault/types/ids"
)

// Bridge turns oracle readings into upload authorizations. All methods stage
// their writes on the given Tx; the caller commits or discards.
type Bridge struct {
	dir Directory
	now func() time.Time
}

func NewBridge(dir Directory, now func() time.Time) *Bridge {
	if now == nil {
		now = time.Now
	}
	return &Bridge{dir: dir, now: now}
}

func (b *Bridge) priceFeed(tx *state.Tx) (PriceFeed, error) {
	cfg, err := tx.Oracles()
	if err != nil {
		return nil, err
	}
	if cfg.FTSO == (common.Address{}) {
		return nil, errs.Configuration(errs.ReasonFTSONotSet)
	}
	feed, ok := b.dir.PriceFeed(cfg.FTSO)
	if !ok {
		return nil, errs.Configuration(errs.ReasonFTSONotSet)
	}
	return feed, nil
}

func (b *Bridge) verifier(tx *state.Tx) (AttestationVerifier, error) {
	cfg, err := tx.Oracles()
	if err != nil {
		return nil, err
	}
	if cfg.FDC == (common.Address{}) {
		return nil, errs.Configuration(errs.ReasonFDCNotSet)
	}
	v, ok := b.dir.Verifier(cfg.FDC)
	if !ok {
		return nil, errs.Configuration(errs.ReasonFDCNotSet)
	}
	return v, nil
}

// RequiredAmount reads the price feed and quotes the configured USD upload
// fee in drops.
func (b *Bridge) RequiredAmount(ctx context.Context, tx *state.Tx) (Quote, error) {
	fees, err := tx.Fees()
	if err != nil {
		return Quote{}, err
	}
	feed, err := b.priceFeed(tx)
	if err != nil {
		return Quote{}, err
	}
	snap, err := feed.ReadPrice(ctx)
	if err != nil {
		return Quote{}, errs.Oracle(errs.ReasonOracleUnavailable, err)
	}
	if err := checkFresh(snap, b.now(), fees.MaxOracleStaleness()); err != nil {
		return Quote{}, err
	}
	drops, err := ComputeDrops(fees.UploadFeeUSDCents, snap.Price, snap.Decimals)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Drops:       drops,
		FeeUSDCents: fees.UploadFeeUSDCents,
		Price:       snap.Price,
		Decimals:    snap.Decimals,
		Timestamp:   snap.Timestamp,
	}, nil
}

// Consumer identifies what a proof is being spent on.
type Consumer struct {
	Caller  common.Address
	Patient ids.ID
	Kind    state.DocumentKind
}

// VerifyAndConsume rejects replayed proofs, asks the verifier, and marks the
// (statementId, proofId) pair consumed, all on the same staged Tx.
func (b *Bridge) VerifyAndConsume(ctx context.Context, tx *state.Tx, att Attestation, by Consumer) error {
	if att.StatementID == "" || att.ProofID == "" || len(att.Proof) == 0 {
		return errs.InvalidProof(errs.ReasonProofInvalid)
	}
	_, used, err := tx.Attestation(att.StatementID, att.ProofID)
	if err != nil {
		return err
	}
	if used {
		return errs.InvalidProof(errs.ReasonProofReplayed)
	}
	v, err := b.verifier(tx)
	if err != nil {
		return err
	}
	ok, err := v.Verify(ctx, att)
	if err != nil {
		return errs.Oracle(errs.ReasonOracleUnavailable, err)
	}
	if !ok {
		return errs.InvalidProof(errs.ReasonProofInvalid)
	}
	return tx.PutAttestation(state.AttestationRecord{
		StatementID: att.StatementID,
		ProofID:     att.ProofID,
		Patient:     by.Patient,
		Kind:        by.Kind,
		PaidDrops:   att.PaidDrops,
		ConsumedBy:  by.Caller,
		ConsumedAt:  b.now().UTC(),
	})
}

// UploadXRP writes a document paid for on the XRP Ledger: quote, check the
// attested amount, consume the proof, then perform the versioned write.
func (b *Bridge) UploadXRP(ctx context.Context, tx *state.Tx, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, att Attestation) (state.DocumentEntry, Quote, error) {
	if !kind.Valid() {
		return state.DocumentEntry{}, Quote{}, errs.InvalidArgument(errs.ReasonInvalidKind)
	}
	if err := documents.ValidatePointer(uri); err != nil {
		return state.DocumentEntry{}, Quote{}, err
	}
	quote, err := b.RequiredAmount(ctx, tx)
	if err != nil {
		return state.DocumentEntry{}, Quote{}, err
	}
	if new(big.Int).SetUint64(att.PaidDrops).Cmp(quote.Drops) < 0 {
		return state.DocumentEntry{}, Quote{}, errs.InsufficientBalance(errs.ReasonPaymentTooSmall)
	}
	if err := b.VerifyAndConsume(ctx, tx, att, Consumer{Caller: caller, Patient: pid, Kind: kind}); err != nil {
		return state.DocumentEntry{}, Quote{}, err
	}
	entry, err := documents.Write(tx, pid, kind, uri, caller, b.now(), state.Provenance{
		Method:        state.PaymentXRPL,
		FeeUSDCents:   quote.FeeUSDCents,
		PaidDrops:     att.PaidDrops,
		RequiredDrops: quote.Drops,
		StatementID:   att.StatementID,
		ProofID:       att.ProofID,
	})
	return entry, quote, err
}

// UploadNative writes a document paid for with native value attached to the
// call. The value must cover the upload fee; any excess is kept by the vault
// and recorded as overpaid.
func (b *Bridge) UploadNative(tx *state.Tx, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, value *big.Int) (state.DocumentEntry, error) {
	if value == nil {
		value = new(big.Int)
	}
	fees, err := tx.Fees()
	if err != nil {
		return state.DocumentEntry{}, err
	}
	if value.Cmp(fees.UploadFeeWei) < 0 {
		return state.DocumentEntry{}, errs.InsufficientBalance(errs.ReasonInsufficientPayment)
	}
	if fees.UploadFeeWei.Sign() > 0 && fees.FeeCollector == (common.Address{}) {
		return state.DocumentEntry{}, errs.Configuration(errs.ReasonCollectorNotSet)
	}
	prov := state.Provenance{
		Method:      state.PaymentNative,
		AmountWei:   new(big.Int).Set(value),
		OverpaidWei: new(big.Int).Sub(value, fees.UploadFeeWei),
	}
	entry, err := documents.Write(tx, pid, kind, uri, caller, b.now(), prov)
	if err != nil {
		return state.DocumentEntry{}, err
	}
	if value.Sign() > 0 {
		if err := billing.ReceiveUploadPayment(tx, fees, value); err != nil {
			return state.DocumentEntry{}, err
		}
	}
	return entry, nil
}
