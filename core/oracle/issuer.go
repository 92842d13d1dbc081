package oracle

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v4"

	"medvault/types/ids"
)

// Issuer signs payment attestations in the format JWTVerifier accepts. It
// stands in for the attestation service in development and tests.
type Issuer struct {
	Key interface{}
	Kid string
	Now func() time.Time
}

func signingMethod(key interface{}) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		if k.Curve.Params().BitSize == 384 {
			return jwt.SigningMethodES384, nil
		}
		return jwt.SigningMethodES256, nil
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// Issue returns the compact JWS for a payment of drops to dest.
func (i *Issuer) Issue(statementID, proofID string, drops uint64, dest string) (string, error) {
	method, err := signingMethod(i.Key)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	claims := PaymentClaims{
		StatementID: statementID,
		ProofID:     proofID,
		PaidDrops:   drops,
		Destination: dest,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(method, claims)
	if i.Kid != "" {
		token.Header["kid"] = i.Kid
	}
	return token.SignedString(i.Key)
}

// IssueReceipt returns the compact JWS for a settled native payment of
// value wei from payer, made for purpose on behalf of pid.
func (i *Issuer) IssueReceipt(txHash string, payer common.Address, value *big.Int, purpose Purpose, pid ids.ID) (string, error) {
	method, err := signingMethod(i.Key)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	claims := ReceiptClaims{
		TxHash:   txHash,
		Payer:    payer.Hex(),
		ValueWei: value.String(),
		Purpose:  purpose,
		Patient:  pid.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(method, claims)
	if i.Kid != "" {
		token.Header["kid"] = i.Kid
	}
	return token.SignedString(i.Key)
}

// LoadPrivateKeyPEM reads a PKCS#8 private key.
func LoadPrivateKeyPEM(path string) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block in " + path)
	}
	return x509.ParsePKCS8PrivateKey(block.Bytes)
}

// WriteKeyPairPEM stores priv as PKCS#8 and its public half as PKIX.
func WriteKeyPairPEM(priv ed25519.PrivateKey, privPath, pubPath string) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		return err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return err
	}
	return os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644)
}
