package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/errs"
	"medvault/core/state"
	"medvault/core/storage"
	"medvault/types/ids"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	guardian  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	insurer   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	accessor1 = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	accessor2 = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	patient   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	pid       = ids.DerivePatientID("MRN-100", "salt")
)

func newTx(t *testing.T) *state.Tx {
	t.Helper()
	s, err := storage.NewMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	tx := state.Begin(s)
	require.NoError(t, tx.SetOwner(owner))
	return tx
}

func TestOwnerAndGuardianCanBindRoles(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, SetGuardian(tx, owner, pid, guardian))
	require.NoError(t, SetInsurer(tx, guardian, pid, insurer))

	rb, err := tx.Roles(pid)
	require.NoError(t, err)
	assert.Equal(t, guardian, rb.Guardian)
	assert.Equal(t, insurer, rb.Insurer)

	// The guardian may hand over guardianship.
	require.NoError(t, SetGuardian(tx, guardian, pid, accessor1))
	err = SetGuardian(tx, guardian, pid, guardian)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotOwner))
}

func TestStrangerCannotBindRoles(t *testing.T) {
	tx := newTx(t)
	err := SetGuardian(tx, stranger, pid, stranger)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotOwner))

	err = SetInsurer(tx, stranger, pid, insurer)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotOwner))

	err = SetGuardian(tx, owner, pid, common.Address{})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestGrantAccess(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, SetGuardian(tx, owner, pid, guardian))

	err := GrantAccess(tx, stranger, pid, stranger, true)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotParentOrOwner))

	require.NoError(t, GrantAccess(tx, guardian, pid, accessor1, true))
	require.NoError(t, GrantAccess(tx, guardian, pid, accessor1, true))

	ok, err := IsAllowed(tx, pid, accessor1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, GrantAccess(tx, owner, pid, accessor1, false))
	ok, err = IsAllowed(tx, pid, accessor1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantAccessBatch(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, SetGuardian(tx, owner, pid, guardian))
	require.NoError(t, GrantAccessBatch(tx, guardian, pid, []common.Address{accessor1, accessor2}, true))

	for _, a := range []common.Address{accessor1, accessor2, guardian, owner} {
		ok, err := IsAllowed(tx, pid, a)
		require.NoError(t, err)
		assert.True(t, ok, a.Hex())
	}
	ok, err := IsAllowed(tx, pid, stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	err = GrantAccessBatch(tx, guardian, pid, []common.Address{accessor1, {}}, true)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestCanUpload(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, SetGuardian(tx, owner, pid, guardian))

	for addr, want := range map[common.Address]bool{owner: true, guardian: true, patient: false, accessor1: false} {
		ok, err := CanUpload(tx, pid, addr)
		require.NoError(t, err)
		assert.Equal(t, want, ok, addr.Hex())
	}

	require.NoError(t, SetPatientSelfUpload(tx, guardian, pid, patient, true))
	ok, err := CanUpload(tx, pid, patient)
	require.NoError(t, err)
	assert.True(t, ok)

	// Read grants do not confer write access.
	require.NoError(t, GrantAccess(tx, guardian, pid, accessor1, true))
	ok, err = CanUpload(tx, pid, accessor1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetPatientSelfUpload(tx, owner, pid, patient, false))
	ok, err = CanUpload(tx, pid, patient)
	require.NoError(t, err)
	assert.False(t, ok)
}
