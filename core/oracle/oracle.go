// Package oracle bridges the vault to its two external oracles: a price feed
// (XRP/USD) and an attestation verifier proving that a payment happened on
// the XRP Ledger. Both are injected capabilities so tests can substitute
// deterministic fakes.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DropsPerXRP is the number of drops in one XRP.
const DropsPerXRP = 1_000_000

// PriceSnapshot is one reading of the XRP/USD feed. Price is a fixed-point
// value with Decimals fractional digits.
type PriceSnapshot struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
}

// PriceFeed reads the current XRP/USD price.
type PriceFeed interface {
	ReadPrice(ctx context.Context) (PriceSnapshot, error)
}

// Attestation is a proof that PaidDrops were paid on the XRP Ledger. Proof
// is opaque to the vault and interpreted by the verifier.
type Attestation struct {
	Proof       []byte
	StatementID string
	ProofID     string
	PaidDrops   uint64
}

// AttestationVerifier checks a payment proof against the attestation oracle.
type AttestationVerifier interface {
	Verify(ctx context.Context, att Attestation) (bool, error)
}

// Directory resolves the oracle addresses bound in vault state to the
// capabilities that serve them.
type Directory interface {
	Verifier(addr common.Address) (AttestationVerifier, bool)
	PriceFeed(addr common.Address) (PriceFeed, bool)
}

// StaticDirectory is a fixed address → capability table.
type StaticDirectory struct {
	mu        sync.RWMutex
	verifiers map[common.Address]AttestationVerifier
	feeds     map[common.Address]PriceFeed
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		verifiers: make(map[common.Address]AttestationVerifier),
		feeds:     make(map[common.Address]PriceFeed),
	}
}

func (d *StaticDirectory) RegisterVerifier(addr common.Address, v AttestationVerifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verifiers[addr] = v
}

func (d *StaticDirectory) RegisterPriceFeed(addr common.Address, f PriceFeed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feeds[addr] = f
}

func (d *StaticDirectory) Verifier(addr common.Address) (AttestationVerifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.verifiers[addr]
	return v, ok
}

func (d *StaticDirectory) PriceFeed(addr common.Address) (PriceFeed, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.feeds[addr]
	return f, ok
}

// StaticPriceFeed serves a price set by the operator. It backs local
// deployments and tests.
type StaticPriceFeed struct {
	mu       sync.RWMutex
	snapshot PriceSnapshot
}

func NewStaticPriceFeed(price int64, decimals uint8, ts time.Time) *StaticPriceFeed {
	f := &StaticPriceFeed{}
	f.Set(price, decimals, ts)
	return f
}

func (f *StaticPriceFeed) Set(price int64, decimals uint8, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = PriceSnapshot{Price: big.NewInt(price), Decimals: decimals, Timestamp: ts}
}

func (f *StaticPriceFeed) ReadPrice(ctx context.Context) (PriceSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return PriceSnapshot{
		Price:     new(big.Int).Set(f.snapshot.Price),
		Decimals:  f.snapshot.Decimals,
		Timestamp: f.snapshot.Timestamp,
	}, nil
}
