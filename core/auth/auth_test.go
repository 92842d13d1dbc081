package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caller = common.HexToAddress("0x00000000000000000000000000000000000000bb")

func TestIssueAndVerify(t *testing.T) {
	a := NewAuthenticator("s3cret", "medvault")
	token, err := a.Issue(caller, time.Minute)
	require.NoError(t, err)

	got, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, caller, got)

	r := httptest.NewRequest("GET", "/v1/status", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	got, err = a.Caller(r)
	require.NoError(t, err)
	assert.Equal(t, caller, got)
}

func TestVerifyRejects(t *testing.T) {
	a := NewAuthenticator("s3cret", "medvault")

	other := NewAuthenticator("other", "medvault")
	forged, err := other.Issue(caller, time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewAuthenticator("s3cret", "elsewhere").Issue(caller, time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := a.Issue(caller, -time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	r := httptest.NewRequest("GET", "/", nil)
	_, err = a.Caller(r)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestDevMode(t *testing.T) {
	a := NewAuthenticator("", "")
	assert.True(t, a.DevMode())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(CallerHeader, caller.Hex())
	got, err := a.Caller(r)
	require.NoError(t, err)
	assert.Equal(t, caller, got)

	_, err = a.Issue(caller, time.Minute)
	assert.Error(t, err)
}
