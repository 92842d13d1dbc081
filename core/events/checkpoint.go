package events

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"medvault/core/state"
)

// MerkleRoot folds hex hashes pairwise with SHA-256. An odd node at any level
// is paired with itself. The root of no hashes is "".
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	level := append([]string(nil), hashes...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := sha256.New()
			h.Write([]byte(level[i]))
			h.Write([]byte(right))
			next = append(next, hex.EncodeToString(h.Sum(nil)))
		}
		level = next
	}
	return level[0]
}

// Checkpoint seals the event range [FromSeq, ToSeq] under one Merkle root,
// optionally signed by the node key.
type Checkpoint struct {
	FromSeq   uint64    `json:"fromSeq"`
	ToSeq     uint64    `json:"toSeq"`
	Count     int       `json:"count"`
	Root      string    `json:"root"`
	HeadHash  string    `json:"headHash"`
	IssuedAt  time.Time `json:"issuedAt"`
	Signer    string    `json:"signer,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

var ErrEmptyRange = errors.New("no events in range")

// BuildCheckpoint gathers the hashes of events from..to in sequence order.
// A to of 0 means the current head.
func BuildCheckpoint(tx *state.Tx, from, to uint64, at time.Time) (Checkpoint, error) {
	if from == 0 {
		from = 1
	}
	head, _, err := Head(tx)
	if err != nil {
		return Checkpoint{}, err
	}
	if to == 0 || to > head {
		to = head
	}
	if from > to {
		return Checkpoint{}, ErrEmptyRange
	}
	evs, err := List(tx, from, int(to-from+1))
	if err != nil {
		return Checkpoint{}, err
	}
	hashes := make([]string, 0, len(evs))
	for _, ev := range evs {
		hashes = append(hashes, ev.Hash)
	}
	return Checkpoint{
		FromSeq:  from,
		ToSeq:    to,
		Count:    len(hashes),
		Root:     MerkleRoot(hashes),
		HeadHash: hashes[len(hashes)-1],
		IssuedAt: at.UTC(),
	}, nil
}

// signingBytes is the canonical message a checkpoint signature covers.
func (c Checkpoint) signingBytes() []byte {
	return []byte(fmt.Sprintf("medvault-checkpoint:%d:%d:%s:%s:%d", c.FromSeq, c.ToSeq, c.Root, c.HeadHash, c.IssuedAt.Unix()))
}

// Sign fills Signer and Signature.
func (c *Checkpoint) Sign(priv ed25519.PrivateKey) {
	c.Signer = hex.EncodeToString(priv.Public().(ed25519.PublicKey))
	c.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, c.signingBytes()))
}

// VerifySignature checks the checkpoint against the signer key it names.
func (c Checkpoint) VerifySignature() bool {
	pub, err := hex.DecodeString(c.Signer)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), c.signingBytes(), sig)
}
