package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindAndReason(t *testing.T) {
	err := Authorization(ReasonNotAllowed)

	assert.True(t, errors.Is(err, ErrAuthorization))
	assert.True(t, errors.Is(err, Authorization(ReasonNotAllowed)))
	assert.False(t, errors.Is(err, Authorization(ReasonNotOwner)))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := fmt.Errorf("upload: %w", InvalidProof(ReasonProofReplayed))

	assert.True(t, errors.Is(err, ErrInvalidProof))
	assert.Equal(t, KindInvalidProof, KindOf(err))
	assert.Equal(t, ReasonProofReplayed, ReasonOf(err))
}

func TestForeignErrors(t *testing.T) {
	err := errors.New("disk full")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "disk full", ReasonOf(err))
	assert.Equal(t, "", ReasonOf(nil))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "AuthorizationError: not owner", Authorization(ReasonNotOwner).Error())
	cause := errors.New("boom")
	err := Internal("commit", cause)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindOf(Authorization(ReasonNotOwner))))
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatus(KindInsufficientBalance))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindInvalidProof))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindOf(errors.New("disk"))))
}
