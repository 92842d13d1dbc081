package vault

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/access"
	"medvault/core/billing"
	"medvault/core/documents"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/oracle"
	"medvault/core/state"
	"medvault/types/ids"
)

func (m *Machine) SetGuardian(ctx context.Context, caller common.Address, pid ids.ID, guardian common.Address) error {
	return m.apply(ctx, "SetGuardian", caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.SetGuardian(tx, caller, pid, guardian); err != nil {
			return events.Event{}, err
		}
		return events.New(events.GuardianSet, caller, pid, map[string]string{"guardian": guardian.Hex()}), nil
	})
}

func (m *Machine) SetInsurer(ctx context.Context, caller common.Address, pid ids.ID, insurer common.Address) error {
	return m.apply(ctx, "SetInsurer", caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.SetInsurer(tx, caller, pid, insurer); err != nil {
			return events.Event{}, err
		}
		return events.New(events.InsurerSet, caller, pid, map[string]string{"insurer": insurer.Hex()}), nil
	})
}

func (m *Machine) SetPatientSelfUpload(ctx context.Context, caller common.Address, pid ids.ID, patient common.Address, enabled bool) error {
	return m.apply(ctx, "SetPatientSelfUpload", caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.SetPatientSelfUpload(tx, caller, pid, patient, enabled); err != nil {
			return events.Event{}, err
		}
		return events.New(events.SelfUploadSet, caller, pid, map[string]string{
			"patient": patient.Hex(),
			"enabled": strconv.FormatBool(enabled),
		}), nil
	})
}

func (m *Machine) GrantAccess(ctx context.Context, caller common.Address, pid ids.ID, accessor common.Address, allowed bool) error {
	return m.GrantAccessBatch(ctx, caller, pid, []common.Address{accessor}, allowed)
}

// GrantAccessBatch grants or revokes several accessors in one transaction
// and one event.
func (m *Machine) GrantAccessBatch(ctx context.Context, caller common.Address, pid ids.ID, accessors []common.Address, allowed bool) error {
	return m.apply(ctx, "GrantAccess", caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.GrantAccessBatch(tx, caller, pid, accessors, allowed); err != nil {
			return events.Event{}, err
		}
		typ := events.AccessGranted
		if !allowed {
			typ = events.AccessRevoked
		}
		hexes := make([]string, len(accessors))
		for i, a := range accessors {
			hexes[i] = a.Hex()
		}
		return events.New(typ, caller, pid, map[string]string{"accessors": strings.Join(hexes, ",")}), nil
	})
}

func uploadFields(entry state.DocumentEntry) map[string]string {
	f := map[string]string{
		"kind":       entry.Kind.String(),
		"version":    strconv.FormatUint(entry.Version, 10),
		"pointerUri": entry.PointerURI,
		"method":     string(entry.Provenance.Method),
	}
	p := entry.Provenance
	switch p.Method {
	case state.PaymentNative:
		f["amountWei"] = p.AmountWei.String()
		f["overpaidWei"] = p.OverpaidWei.String()
	case state.PaymentXRPL:
		f["paidDrops"] = strconv.FormatUint(p.PaidDrops, 10)
		f["requiredDrops"] = p.RequiredDrops.String()
		f["feeUsdCents"] = strconv.FormatUint(p.FeeUSDCents, 10)
		f["statementId"] = p.StatementID
		f["proofId"] = p.ProofID
	}
	return f
}

// UploadRecord is the unpaid upload by the guardian, the owner or a
// self-uploading patient.
func (m *Machine) UploadRecord(ctx context.Context, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := m.apply(ctx, "UploadRecord", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		entry, err = documents.UploadRecord(tx, caller, pid, kind, uri, m.now())
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.DocumentUploaded, caller, pid, uploadFields(entry)), nil
	})
	return entry, err
}

// UploadDocumentFLR uploads against a native payment of value wei. Anyone
// may pay; the payment is the authorization.
func (m *Machine) UploadDocumentFLR(ctx context.Context, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, value *big.Int) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := m.apply(ctx, "UploadDocumentFLR", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		entry, err = m.bridge.UploadNative(tx, caller, pid, kind, uri, value)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.DocumentUploaded, caller, pid, uploadFields(entry)), nil
	})
	return entry, err
}

// RedeemUploadReceipt is UploadDocumentFLR for callers outside the process:
// the value comes from a verified payment receipt, which is consumed in the
// same transaction as the write.
func (m *Machine) RedeemUploadReceipt(ctx context.Context, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, pay oracle.NativePayment) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := m.apply(ctx, "UploadDocumentFLR", caller, func(tx *state.Tx) (events.Event, error) {
		by := oracle.Consumer{Caller: caller, Patient: pid, Kind: kind}
		if err := m.bridge.ConsumeReceipt(tx, pay, oracle.PurposeUpload, by); err != nil {
			return events.Event{}, err
		}
		var err error
		entry, err = m.bridge.UploadNative(tx, caller, pid, kind, uri, pay.Value)
		if err != nil {
			return events.Event{}, err
		}
		fields := uploadFields(entry)
		fields["txHash"] = pay.TxHash
		return events.New(events.DocumentUploaded, caller, pid, fields), nil
	})
	return entry, err
}

// UploadDocumentXRP uploads against an attested XRP Ledger payment. The
// price read, proof verification and proof consumption happen inside the
// same serialized transaction as the write.
func (m *Machine) UploadDocumentXRP(ctx context.Context, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, att oracle.Attestation) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := m.apply(ctx, "UploadDocumentXRP", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		entry, _, err = m.bridge.UploadXRP(ctx, tx, caller, pid, kind, uri, att)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.DocumentUploaded, caller, pid, uploadFields(entry)), nil
	})
	return entry, err
}

// GetRecord returns the latest document entry and charges the patient's
// insurer the access fee.
func (m *Machine) GetRecord(ctx context.Context, caller common.Address, pid ids.ID, kind state.DocumentKind) (state.DocumentEntry, billing.ReadCharge, error) {
	var (
		entry  state.DocumentEntry
		charge billing.ReadCharge
	)
	err := m.apply(ctx, "GetRecord", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		entry, charge, err = documents.Read(tx, caller, pid, kind)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.DocumentRead, caller, pid, map[string]string{
			"kind":         kind.String(),
			"version":      strconv.FormatUint(entry.Version, 10),
			"insurer":      charge.Insurer.Hex(),
			"feeWei":       charge.Fee.String(),
			"remainingWei": charge.Remaining.String(),
		}), nil
	})
	return entry, charge, err
}

// DepositFor credits value to the insurer bound to pid. Anyone may fund an
// insurer balance.
func (m *Machine) DepositFor(ctx context.Context, caller common.Address, pid ids.ID, value *big.Int) (common.Address, *big.Int, error) {
	return m.deposit(ctx, caller, pid, value, nil)
}

// RedeemDepositReceipt credits the value of a verified payment receipt to
// the insurer bound to pid and consumes the receipt.
func (m *Machine) RedeemDepositReceipt(ctx context.Context, caller common.Address, pid ids.ID, pay oracle.NativePayment) (common.Address, *big.Int, error) {
	return m.deposit(ctx, caller, pid, pay.Value, &pay)
}

func (m *Machine) deposit(ctx context.Context, caller common.Address, pid ids.ID, value *big.Int, pay *oracle.NativePayment) (common.Address, *big.Int, error) {
	var (
		insurer common.Address
		balance *big.Int
	)
	err := m.apply(ctx, "DepositFor", caller, func(tx *state.Tx) (events.Event, error) {
		if pay != nil {
			by := oracle.Consumer{Caller: caller, Patient: pid}
			if err := m.bridge.ConsumeReceipt(tx, *pay, oracle.PurposeDeposit, by); err != nil {
				return events.Event{}, err
			}
		}
		var err error
		insurer, balance, err = billing.Deposit(tx, pid, value)
		if err != nil {
			return events.Event{}, err
		}
		fields := map[string]string{
			"insurer":    insurer.Hex(),
			"amountWei":  value.String(),
			"balanceWei": balance.String(),
		}
		if pay != nil {
			fields["txHash"] = pay.TxHash
		}
		return events.New(events.InsurerDeposit, caller, pid, fields), nil
	})
	return insurer, balance, err
}

func (m *Machine) SetAccessFee(ctx context.Context, caller common.Address, feeWei *big.Int, collector common.Address) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := m.apply(ctx, "SetAccessFee", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		fees, err = billing.SetAccessFee(tx, caller, feeWei, collector)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.AccessFeeChanged, caller, ids.Empty, map[string]string{
			"accessFeeWei": fees.AccessFeeWei.String(),
			"collector":    fees.FeeCollector.Hex(),
		}), nil
	})
	return fees, err
}

func (m *Machine) SetUploadFees(ctx context.Context, caller common.Address, feeWei *big.Int, usdCents uint64, collector common.Address) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := m.apply(ctx, "SetUploadFees", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		fees, err = billing.SetUploadFees(tx, caller, feeWei, usdCents, collector)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.UploadFeesChanged, caller, ids.Empty, map[string]string{
			"uploadFeeWei":      fees.UploadFeeWei.String(),
			"uploadFeeUsdCents": strconv.FormatUint(fees.UploadFeeUSDCents, 10),
			"collector":         fees.FeeCollector.Hex(),
		}), nil
	})
	return fees, err
}

func (m *Machine) SetMaxOracleStaleness(ctx context.Context, caller common.Address, seconds uint64) (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := m.apply(ctx, "SetMaxOracleStaleness", caller, func(tx *state.Tx) (events.Event, error) {
		var err error
		fees, err = billing.SetMaxOracleStaleness(tx, caller, seconds)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.StalenessChanged, caller, ids.Empty, map[string]string{
			"seconds": strconv.FormatUint(seconds, 10),
		}), nil
	})
	return fees, err
}

// SetFDC binds the attestation verifier address.
func (m *Machine) SetFDC(ctx context.Context, caller, addr common.Address) error {
	return m.setOracle(ctx, "SetFDC", "fdc", caller, addr)
}

// SetFTSO binds the price feed address.
func (m *Machine) SetFTSO(ctx context.Context, caller, addr common.Address) error {
	return m.setOracle(ctx, "SetFTSO", "ftso", caller, addr)
}

func (m *Machine) setOracle(ctx context.Context, op, role string, caller, addr common.Address) error {
	return m.apply(ctx, op, caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.RequireOwner(tx, caller); err != nil {
			return events.Event{}, err
		}
		if addr == (common.Address{}) {
			return events.Event{}, errs.InvalidArgument(errs.ReasonZeroAddress)
		}
		cfg, err := tx.Oracles()
		if err != nil {
			return events.Event{}, err
		}
		if role == "fdc" {
			cfg.FDC = addr
		} else {
			cfg.FTSO = addr
		}
		if err := tx.PutOracles(cfg); err != nil {
			return events.Event{}, err
		}
		return events.New(events.OracleChanged, caller, ids.Empty, map[string]string{
			"role":    role,
			"address": addr.Hex(),
		}), nil
	})
}

// TransferOwnership hands the owner role to next.
func (m *Machine) TransferOwnership(ctx context.Context, caller, next common.Address) error {
	return m.apply(ctx, "TransferOwnership", caller, func(tx *state.Tx) (events.Event, error) {
		if err := access.RequireOwner(tx, caller); err != nil {
			return events.Event{}, err
		}
		if next == (common.Address{}) {
			return events.Event{}, errs.InvalidArgument(errs.ReasonZeroAddress)
		}
		if err := tx.SetOwner(next); err != nil {
			return events.Event{}, err
		}
		return events.New(events.OwnershipTransferred, caller, ids.Empty, map[string]string{
			"from": caller.Hex(),
			"to":   next.Hex(),
		}), nil
	})
}
