// Package nodekey manages the node's Ed25519 identity used to sign journal
// checkpoints.
package nodekey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	PrivKeyFile = "node_ed25519.priv"
	PubKeyFile  = "node_ed25519.pub"
)

// LoadOrCreate reads the keypair from dir, generating and saving one if the
// private key file is absent.
func LoadOrCreate(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := Load(dir)
	if err == nil {
		return pub, priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, PrivKeyFile), []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, PubKeyFile), []byte(hex.EncodeToString(pub)), 0o644); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// Load reads an existing keypair from dir.
func Load(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(filepath.Join(dir, PrivKeyFile))
	if err != nil {
		return nil, nil, err
	}
	priv, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", PrivKeyFile, err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("%s: want %d bytes, got %d", PrivKeyFile, ed25519.PrivateKeySize, len(priv))
	}
	key := ed25519.PrivateKey(priv)
	return key.Public().(ed25519.PublicKey), key, nil
}
