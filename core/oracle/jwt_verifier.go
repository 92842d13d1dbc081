package oracle

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// PaymentClaims is the body of a signed XRPL payment attestation.
type PaymentClaims struct {
	StatementID string `json:"stmt"`
	ProofID     string `json:"pid"`
	PaidDrops   uint64 `json:"drops"`
	Destination string `json:"dest,omitempty"`
	jwt.RegisteredClaims
}

// KeyProvider resolves the public key an attestation was signed with.
type KeyProvider interface {
	GetPublicKey(kid string) (interface{}, error)
}

// StaticKeyProvider serves keys registered by kid. An empty kid falls back
// to the default key.
type StaticKeyProvider struct {
	mu      sync.RWMutex
	keys    map[string]interface{}
	Default interface{}
}

func NewStaticKeyProvider(def interface{}) *StaticKeyProvider {
	return &StaticKeyProvider{keys: make(map[string]interface{}), Default: def}
}

func (p *StaticKeyProvider) Add(kid string, key interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[kid] = key
}

func (p *StaticKeyProvider) GetPublicKey(kid string) (interface{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if k, ok := p.keys[kid]; ok {
		return k, nil
	}
	if p.Default != nil {
		return p.Default, nil
	}
	return nil, fmt.Errorf("no public key for kid %q", kid)
}

// LoadPublicKeyPEM reads an RSA, ECDSA or Ed25519 public key from a PEM file.
func LoadPublicKeyPEM(path string) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePublicKeyPEM(raw)
}

func ParsePublicKeyPEM(raw []byte) (interface{}, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(raw); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(raw); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(raw); err == nil {
		return k, nil
	}
	return nil, errors.New("unsupported public key PEM")
}

var asymmetricParser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}))

// keyFunc resolves the token's kid through keys. A lookup failure is stored
// in keyErr so callers can tell a missing key from a bad signature.
func keyFunc(keys KeyProvider, keyErr *error) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := keys.GetPublicKey(kid)
		if err != nil {
			*keyErr = err
			return nil, err
		}
		switch key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			*keyErr = fmt.Errorf("unsupported key type %T", key)
			return nil, *keyErr
		}
		return key, nil
	}
}

// JWTVerifier checks attestations whose proof is a JWS over PaymentClaims.
// A bad signature or mismatched claim is a rejected proof; a missing key is
// an error.
type JWTVerifier struct {
	Keys        KeyProvider
	Destination string
	MaxAge      time.Duration
	Now         func() time.Time
}

func (v *JWTVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *JWTVerifier) Verify(ctx context.Context, att Attestation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var keyErr error
	claims := &PaymentClaims{}
	token, err := asymmetricParser.ParseWithClaims(string(att.Proof), claims, keyFunc(v.Keys, &keyErr))
	if keyErr != nil {
		return false, keyErr
	}
	if err != nil || !token.Valid {
		return false, nil
	}
	if claims.StatementID != att.StatementID || claims.ProofID != att.ProofID || claims.PaidDrops != att.PaidDrops {
		return false, nil
	}
	if v.Destination != "" && claims.Destination != v.Destination {
		return false, nil
	}
	if v.MaxAge > 0 {
		if claims.IssuedAt == nil || v.now().Sub(claims.IssuedAt.Time) > v.MaxAge {
			return false, nil
		}
	}
	return true, nil
}
