// Package auth maps API bearer tokens to vault caller addresses.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// CallerHeader names the caller directly. Only honored in dev mode.
const CallerHeader = "X-Vault-Caller"

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims binds a token to the address it acts for.
type Claims struct {
	Address string `json:"addr"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks HS256 caller tokens. With an empty secret
// it runs in dev mode and trusts CallerHeader.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// Issue signs a token for addr valid for ttl.
func (a *Authenticator) Issue(addr common.Address, ttl time.Duration) (string, error) {
	if a.DevMode() {
		return "", errors.New("no signing secret configured")
	}
	now := a.now()
	claims := Claims{
		Address: addr.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   addr.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses token and returns the caller address it carries.
func (a *Authenticator) Verify(token string) (common.Address, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !common.IsHexAddress(claims.Address) {
		return common.Address{}, fmt.Errorf("%w: bad addr claim", ErrInvalidToken)
	}
	return common.HexToAddress(claims.Address), nil
}

// Caller resolves the caller of r.
func (a *Authenticator) Caller(r *http.Request) (common.Address, error) {
	if a.DevMode() {
		h := r.Header.Get(CallerHeader)
		if !common.IsHexAddress(h) {
			return common.Address{}, ErrNoToken
		}
		return common.HexToAddress(h), nil
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return common.Address{}, ErrNoToken
	}
	return a.Verify(strings.TrimPrefix(header, "Bearer "))
}
