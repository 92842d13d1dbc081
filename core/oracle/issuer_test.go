package oracle

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerRoundTripsThroughVerifier(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	privPath, pubPath := filepath.Join(dir, "fdc.key"), filepath.Join(dir, "fdc.pub")
	require.NoError(t, WriteKeyPairPEM(priv, privPath, pubPath))

	loaded, err := LoadPrivateKeyPEM(privPath)
	require.NoError(t, err)
	pub, err := LoadPublicKeyPEM(pubPath)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	iss := &Issuer{Key: loaded, Now: func() time.Time { return now }}
	jws, err := iss.Issue("stmt-1", "proof-1", 2_000_000, "rVault")
	require.NoError(t, err)

	v := &JWTVerifier{Keys: NewStaticKeyProvider(pub), Destination: "rVault", MaxAge: time.Minute, Now: func() time.Time { return now }}
	ok, err := v.Verify(context.Background(), Attestation{Proof: []byte(jws), StatementID: "stmt-1", ProofID: "proof-1", PaidDrops: 2_000_000})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), Attestation{Proof: []byte(jws), StatementID: "stmt-1", ProofID: "proof-1", PaidDrops: 3_000_000})
	require.NoError(t, err)
	assert.False(t, ok, "claimed drops must match the signed amount")
}

func TestIssuerRSAWithKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := &Issuer{Key: key, Kid: "fdc-2024"}
	jws, err := iss.Issue("s", "p", 1, "")
	require.NoError(t, err)

	keys := NewStaticKeyProvider(nil)
	keys.Add("fdc-2024", &key.PublicKey)
	ok, err := (&JWTVerifier{Keys: keys}).Verify(context.Background(), Attestation{Proof: []byte(jws), StatementID: "s", ProofID: "p", PaidDrops: 1})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIssuerRejectsUnknownKey(t *testing.T) {
	_, err := (&Issuer{Key: "not a key"}).Issue("s", "p", 1, "")
	assert.Error(t, err)
}
