// Package access holds the per-patient role bindings: guardian, insurer,
// the patient's own address, and the read grants of individual accessors.
//
// Every function works on a staged state.Tx; nothing is visible until the
// caller commits.
package access

import (
	"github.com/ethereum/go-ethereum/common"

	"medvault/core/errs"
	"medvault/core/state"
	"medvault/types/ids"
)

func isOwner(tx *state.Tx, addr common.Address) (bool, error) {
	owner, err := tx.Owner()
	if err != nil {
		return false, err
	}
	return owner != (common.Address{}) && owner == addr, nil
}

func isGuardian(rb state.RoleBinding, addr common.Address) bool {
	return rb.Guardian != (common.Address{}) && rb.Guardian == addr
}

// administer loads the binding for pid and checks that caller is the owner or
// the patient's guardian. reason is the rejection reason on failure.
func administer(tx *state.Tx, caller common.Address, pid ids.ID, reason string) (state.RoleBinding, error) {
	rb, err := tx.Roles(pid)
	if err != nil {
		return state.RoleBinding{}, err
	}
	if isGuardian(rb, caller) {
		return rb, nil
	}
	owner, err := isOwner(tx, caller)
	if err != nil {
		return state.RoleBinding{}, err
	}
	if !owner {
		return state.RoleBinding{}, errs.Authorization(reason)
	}
	return rb, nil
}

// SetGuardian binds the guardian (parent) of pid.
func SetGuardian(tx *state.Tx, caller common.Address, pid ids.ID, guardian common.Address) error {
	if guardian == (common.Address{}) {
		return errs.InvalidArgument(errs.ReasonZeroAddress)
	}
	rb, err := administer(tx, caller, pid, errs.ReasonNotOwner)
	if err != nil {
		return err
	}
	rb.Guardian = guardian
	return tx.PutRoles(pid, rb)
}

// SetInsurer binds the payer whose escrow is debited on reads of pid.
func SetInsurer(tx *state.Tx, caller common.Address, pid ids.ID, insurer common.Address) error {
	if insurer == (common.Address{}) {
		return errs.InvalidArgument(errs.ReasonZeroAddress)
	}
	rb, err := administer(tx, caller, pid, errs.ReasonNotOwner)
	if err != nil {
		return err
	}
	rb.Insurer = insurer
	return tx.PutRoles(pid, rb)
}

// SetPatientSelfUpload binds the patient's own address and whether it may
// upload its own documents.
func SetPatientSelfUpload(tx *state.Tx, caller common.Address, pid ids.ID, patient common.Address, enabled bool) error {
	if patient == (common.Address{}) {
		return errs.InvalidArgument(errs.ReasonZeroAddress)
	}
	rb, err := administer(tx, caller, pid, errs.ReasonNotParentOrOwner)
	if err != nil {
		return err
	}
	rb.Patient = patient
	rb.SelfUpload = enabled
	return tx.PutRoles(pid, rb)
}

// GrantAccess sets the read grant of accessor. Re-granting the same value
// rewrites the same binding.
func GrantAccess(tx *state.Tx, caller common.Address, pid ids.ID, accessor common.Address, allowed bool) error {
	return GrantAccessBatch(tx, caller, pid, []common.Address{accessor}, allowed)
}

// GrantAccessBatch sets the same read grant on every accessor.
func GrantAccessBatch(tx *state.Tx, caller common.Address, pid ids.ID, accessors []common.Address, allowed bool) error {
	rb, err := administer(tx, caller, pid, errs.ReasonNotParentOrOwner)
	if err != nil {
		return err
	}
	for _, a := range accessors {
		if a == (common.Address{}) {
			return errs.InvalidArgument(errs.ReasonZeroAddress)
		}
		rb.Accessors[a] = allowed
	}
	return tx.PutRoles(pid, rb)
}

// CanUpload reports whether addr may write documents for pid without paying.
func CanUpload(tx *state.Tx, pid ids.ID, addr common.Address) (bool, error) {
	rb, err := tx.Roles(pid)
	if err != nil {
		return false, err
	}
	if isGuardian(rb, addr) {
		return true, nil
	}
	if rb.SelfUpload && rb.Patient != (common.Address{}) && rb.Patient == addr {
		return true, nil
	}
	return isOwner(tx, addr)
}

// IsAllowed reports whether addr may read documents of pid. Payment is a
// separate concern handled at read time.
func IsAllowed(tx *state.Tx, pid ids.ID, addr common.Address) (bool, error) {
	rb, err := tx.Roles(pid)
	if err != nil {
		return false, err
	}
	if isGuardian(rb, addr) || rb.Accessors[addr] {
		return true, nil
	}
	return isOwner(tx, addr)
}

// RequireOwner rejects any caller other than the global owner.
func RequireOwner(tx *state.Tx, caller common.Address) error {
	ok, err := isOwner(tx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Authorization(errs.ReasonNotOwner)
	}
	return nil
}
