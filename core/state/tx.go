package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/storage"
	"medvault/types/ids"
)

// Key layout.
const (
	keyOwner           = "meta:owner"
	keyFees            = "meta:fees"
	keyOracles         = "meta:oracles"
	keyContractBalance = "meta:contract_balance"
	keyGenesis         = "meta:genesis"
	prefixRoles        = "roles:"
	prefixDoc          = "doc:"
	prefixBalance      = "bal:"
	prefixCollected    = "collected:"
	prefixAttestation  = "att:"
)

// Tx stages writes over a StateBackend. Reads see staged writes first.
// Nothing reaches the backend until Commit, which writes one atomic batch;
// a Tx that is dropped without Commit leaves no trace.
type Tx struct {
	backend storage.StateBackend
	writes  map[string][]byte
}

// Begin opens a staged transaction over backend.
func Begin(backend storage.StateBackend) *Tx {
	return &Tx{backend: backend, writes: make(map[string][]byte)}
}

// Commit writes every staged change atomically.
func (tx *Tx) Commit() error {
	if err := tx.backend.WriteBatch(tx.writes); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	tx.writes = make(map[string][]byte)
	return nil
}

// Load decodes the JSON value at key into v. It reports false when absent.
func (tx *Tx) Load(key string, v any) (bool, error) {
	raw, ok := tx.writes[key]
	if !ok {
		var err error
		raw, err = tx.backend.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Store stages v, JSON encoded, at key.
func (tx *Tx) Store(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tx.writes[key] = raw
	return nil
}

// Scan visits every key under prefix in ascending order, merging staged
// writes over the backend.
func (tx *Tx) Scan(prefix string, fn func(key string, raw []byte) error) error {
	merged := make(map[string][]byte)
	err := tx.backend.Iterate(prefix, func(key string, value []byte) error {
		merged[key] = value
		return nil
	})
	if err != nil {
		return err
	}
	for k, v := range tx.writes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Initialized reports whether genesis has been applied.
func (tx *Tx) Initialized() (bool, error) {
	_, ok, err := tx.Genesis()
	return ok, err
}

// Genesis returns the hash of the genesis document applied to this vault.
func (tx *Tx) Genesis() (ids.ID, bool, error) {
	var id ids.ID
	ok, err := tx.Load(keyGenesis, &id)
	return id, ok, err
}

func (tx *Tx) MarkInitialized(genesis ids.ID) error {
	return tx.Store(keyGenesis, genesis)
}

func (tx *Tx) Owner() (common.Address, error) {
	var owner common.Address
	_, err := tx.Load(keyOwner, &owner)
	return owner, err
}

func (tx *Tx) SetOwner(owner common.Address) error {
	return tx.Store(keyOwner, owner)
}

// Roles returns the binding for pid; an unknown patient has the zero binding.
func (tx *Tx) Roles(pid ids.ID) (RoleBinding, error) {
	var rb RoleBinding
	if _, err := tx.Load(prefixRoles+pid.String(), &rb); err != nil {
		return RoleBinding{}, err
	}
	if rb.Accessors == nil {
		rb.Accessors = make(map[common.Address]bool)
	}
	return rb, nil
}

func (tx *Tx) PutRoles(pid ids.ID, rb RoleBinding) error {
	return tx.Store(prefixRoles+pid.String(), rb)
}

func docKey(pid ids.ID, kind DocumentKind) string {
	return fmt.Sprintf("%s%s:%03d", prefixDoc, pid.String(), uint8(kind))
}

func (tx *Tx) Document(pid ids.ID, kind DocumentKind) (DocumentEntry, bool, error) {
	var entry DocumentEntry
	ok, err := tx.Load(docKey(pid, kind), &entry)
	return entry, ok, err
}

func (tx *Tx) PutDocument(entry DocumentEntry) error {
	return tx.Store(docKey(entry.Patient, entry.Kind), entry)
}

// Documents returns the latest entry of every kind stored for pid.
func (tx *Tx) Documents(pid ids.ID) ([]DocumentEntry, error) {
	var out []DocumentEntry
	err := tx.Scan(prefixDoc+pid.String()+":", func(key string, raw []byte) error {
		var entry DocumentEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

func (tx *Tx) loadAmount(key string) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := tx.Load(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func addrKey(prefix string, a common.Address) string {
	return prefix + strings.ToLower(a.Hex())
}

func (tx *Tx) InsurerBalance(insurer common.Address) (*big.Int, error) {
	return tx.loadAmount(addrKey(prefixBalance, insurer))
}

func (tx *Tx) PutInsurerBalance(insurer common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance for %s", insurer.Hex())
	}
	return tx.Store(addrKey(prefixBalance, insurer), amount)
}

func (tx *Tx) CollectedFees(collector common.Address) (*big.Int, error) {
	return tx.loadAmount(addrKey(prefixCollected, collector))
}

func (tx *Tx) PutCollectedFees(collector common.Address, amount *big.Int) error {
	return tx.Store(addrKey(prefixCollected, collector), amount)
}

// ContractBalance is the aggregate native balance held by the vault.
func (tx *Tx) ContractBalance() (*big.Int, error) {
	return tx.loadAmount(keyContractBalance)
}

func (tx *Tx) PutContractBalance(amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.New("negative contract balance")
	}
	return tx.Store(keyContractBalance, amount)
}

// Fees returns the fee schedule with zero amounts filled in.
func (tx *Tx) Fees() (FeeConfig, error) {
	var fees FeeConfig
	if _, err := tx.Load(keyFees, &fees); err != nil {
		return FeeConfig{}, err
	}
	if fees.AccessFeeWei == nil {
		fees.AccessFeeWei = Zero()
	}
	if fees.UploadFeeWei == nil {
		fees.UploadFeeWei = Zero()
	}
	return fees, nil
}

func (tx *Tx) PutFees(fees FeeConfig) error {
	return tx.Store(keyFees, fees)
}

func (tx *Tx) Oracles() (OracleConfig, error) {
	var cfg OracleConfig
	_, err := tx.Load(keyOracles, &cfg)
	return cfg, err
}

func (tx *Tx) PutOracles(cfg OracleConfig) error {
	return tx.Store(keyOracles, cfg)
}

// attestationKey is unambiguous for any pair of strings.
func attestationKey(statementID, proofID string) string {
	id := ids.NewID([]byte(fmt.Sprintf("%d:%s|%s", len(statementID), statementID, proofID)))
	return prefixAttestation + id.String()
}

func (tx *Tx) Attestation(statementID, proofID string) (AttestationRecord, bool, error) {
	var rec AttestationRecord
	ok, err := tx.Load(attestationKey(statementID, proofID), &rec)
	return rec, ok, err
}

func (tx *Tx) PutAttestation(rec AttestationRecord) error {
	return tx.Store(attestationKey(rec.StatementID, rec.ProofID), rec)
}
