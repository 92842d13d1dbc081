package documents

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/access"
	"medvault/core/billing"
	"medvault/core/errs"
	"medvault/core/state"
	"medvault/core/storage"
	"medvault/types/ids"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	guardian  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	insurer   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	collector = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	accessor  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	pid       = ids.DerivePatientID("MRN-300", "salt")
	now       = time.Date(2025, 5, 22, 18, 0, 0, 0, time.UTC)
)

func newTx(t *testing.T) *state.Tx {
	t.Helper()
	s, err := storage.NewMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	tx := state.Begin(s)
	require.NoError(t, tx.SetOwner(owner))
	require.NoError(t, access.SetGuardian(tx, owner, pid, guardian))
	return tx
}

func TestUploadRecordVersions(t *testing.T) {
	tx := newTx(t)

	e1, err := UploadRecord(tx, guardian, pid, state.Diagnosis, "ipfs://v1", now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Version)
	assert.Equal(t, state.PaymentNone, e1.Provenance.Method)

	_, err = UploadRecord(tx, owner, pid, state.Referral, "ipfs://ref", now)
	require.NoError(t, err)

	e2, err := UploadRecord(tx, guardian, pid, state.Diagnosis, "ipfs://v2", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Version)
	assert.Equal(t, "ipfs://v2", e2.PointerURI)

	ref, err := Meta(tx, pid, state.Referral)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ref.Version)
	assert.Equal(t, "ipfs://ref", ref.PointerURI)

	all, err := PatientMeta(tx, pid)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUploadRecordRejectsStrangers(t *testing.T) {
	tx := newTx(t)
	_, err := UploadRecord(tx, stranger, pid, state.Intake, "ipfs://x", now)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotPermitted))

	_, err = Meta(tx, pid, state.Intake)
	assert.ErrorIs(t, err, errs.NotFound(errs.ReasonRecordNotFound))
}

func TestValidatePointer(t *testing.T) {
	assert.NoError(t, ValidatePointer("ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"))
	assert.Error(t, ValidatePointer(""))
	assert.Error(t, ValidatePointer("ipfs://a b"))
	assert.Error(t, ValidatePointer(strings.Repeat("a", MaxPointerLength+1)))

	tx := newTx(t)
	_, err := Write(tx, pid, state.DocumentKind(99), "ipfs://x", guardian, now, state.Provenance{})
	assert.ErrorIs(t, err, errs.InvalidArgument(errs.ReasonInvalidKind))
}

func TestReadChargesInsurer(t *testing.T) {
	tx := newTx(t)
	require.NoError(t, access.SetInsurer(tx, guardian, pid, insurer))
	require.NoError(t, access.GrantAccess(tx, guardian, pid, accessor, true))
	_, err := billing.SetAccessFee(tx, owner, big.NewInt(100), collector)
	require.NoError(t, err)
	_, _, err = billing.Deposit(tx, pid, big.NewInt(1000))
	require.NoError(t, err)

	_, _, err = Read(tx, accessor, pid, state.Diagnosis)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = UploadRecord(tx, guardian, pid, state.Diagnosis, "ipfs://v1", now)
	require.NoError(t, err)

	entry, charge, err := Read(tx, accessor, pid, state.Diagnosis)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://v1", entry.PointerURI)
	assert.Equal(t, int64(900), charge.Remaining.Int64())

	_, _, err = Read(tx, stranger, pid, state.Diagnosis)
	assert.ErrorIs(t, err, errs.Authorization(errs.ReasonNotAllowed))

	bal, err := tx.InsurerBalance(insurer)
	require.NoError(t, err)
	assert.Equal(t, int64(900), bal.Int64())
}
