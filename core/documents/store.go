// Package documents keeps the versioned metadata of each patient's documents.
// Only the latest pointer per (patient, kind) is retained; history lives in
// the event journal.
package documents

import (
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/access"
	"medvault/core/billing"
	"medvault/core/errs"
	"medvault/core/state"
	"medvault/types/ids"
)

// MaxPointerLength bounds the opaque pointer URI.
const MaxPointerLength = 2048

// ValidatePointer checks that uri is a non-empty printable locator.
func ValidatePointer(uri string) error {
	if uri == "" || len(uri) > MaxPointerLength {
		return errs.InvalidArgument(errs.ReasonInvalidPointer)
	}
	if strings.IndexFunc(uri, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0 {
		return errs.InvalidArgument(errs.ReasonInvalidPointer)
	}
	return nil
}

// Write performs the versioned write shared by every upload path: version 1
// for a new (pid, kind), otherwise the previous version plus one. Callers
// authorize and charge before calling Write.
func Write(tx *state.Tx, pid ids.ID, kind state.DocumentKind, uri string, by common.Address, at time.Time, prov state.Provenance) (state.DocumentEntry, error) {
	if !kind.Valid() {
		return state.DocumentEntry{}, errs.InvalidArgument(errs.ReasonInvalidKind)
	}
	if err := ValidatePointer(uri); err != nil {
		return state.DocumentEntry{}, err
	}
	entry, _, err := tx.Document(pid, kind)
	if err != nil {
		return state.DocumentEntry{}, err
	}
	entry = state.DocumentEntry{
		Patient:    pid,
		Kind:       kind,
		PointerURI: uri,
		Version:    entry.Version + 1,
		UpdatedAt:  at.UTC(),
		UpdatedBy:  by,
		Provenance: prov,
	}
	return entry, tx.PutDocument(entry)
}

// UploadRecord writes without payment. The caller must be allowed to upload
// for the patient.
func UploadRecord(tx *state.Tx, caller common.Address, pid ids.ID, kind state.DocumentKind, uri string, at time.Time) (state.DocumentEntry, error) {
	ok, err := access.CanUpload(tx, pid, caller)
	if err != nil {
		return state.DocumentEntry{}, err
	}
	if !ok {
		return state.DocumentEntry{}, errs.Authorization(errs.ReasonNotPermitted)
	}
	return Write(tx, pid, kind, uri, caller, at, state.Provenance{Method: state.PaymentNone})
}

// Meta returns the latest metadata without any authorization check.
func Meta(tx *state.Tx, pid ids.ID, kind state.DocumentKind) (state.DocumentEntry, error) {
	if !kind.Valid() {
		return state.DocumentEntry{}, errs.InvalidArgument(errs.ReasonInvalidKind)
	}
	entry, ok, err := tx.Document(pid, kind)
	if err != nil {
		return state.DocumentEntry{}, err
	}
	if !ok {
		return state.DocumentEntry{}, errs.NotFound(errs.ReasonRecordNotFound)
	}
	return entry, nil
}

// PatientMeta returns the latest metadata of every kind stored for pid.
func PatientMeta(tx *state.Tx, pid ids.ID) ([]state.DocumentEntry, error) {
	return tx.Documents(pid)
}

// Read is the paid read path: the caller must hold a grant, the document must
// exist, and the patient's insurer is charged the access fee. Callers discard
// the transaction on error.
func Read(tx *state.Tx, caller common.Address, pid ids.ID, kind state.DocumentKind) (state.DocumentEntry, billing.ReadCharge, error) {
	ok, err := access.IsAllowed(tx, pid, caller)
	if err != nil {
		return state.DocumentEntry{}, billing.ReadCharge{}, err
	}
	if !ok {
		return state.DocumentEntry{}, billing.ReadCharge{}, errs.Authorization(errs.ReasonNotAllowed)
	}
	entry, err := Meta(tx, pid, kind)
	if err != nil {
		return state.DocumentEntry{}, billing.ReadCharge{}, err
	}
	charge, err := billing.ChargeRead(tx, pid)
	if err != nil {
		return state.DocumentEntry{}, billing.ReadCharge{}, err
	}
	return entry, charge, nil
}
