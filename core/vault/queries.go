package vault

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/access"
	"medvault/core/documents"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/oracle"
	"medvault/core/state"
	"medvault/types/ids"
)

// GetRecordMeta returns document metadata without authorization or charge.
func (m *Machine) GetRecordMeta(pid ids.ID, kind state.DocumentKind) (state.DocumentEntry, error) {
	var entry state.DocumentEntry
	err := m.view(func(tx *state.Tx) error {
		var err error
		entry, err = documents.Meta(tx, pid, kind)
		return err
	})
	return entry, err
}

// PatientMeta returns the latest entry of every kind stored for pid.
func (m *Machine) PatientMeta(pid ids.ID) ([]state.DocumentEntry, error) {
	var out []state.DocumentEntry
	err := m.view(func(tx *state.Tx) error {
		var err error
		out, err = documents.PatientMeta(tx, pid)
		return err
	})
	return out, err
}

func (m *Machine) RoleBinding(pid ids.ID) (state.RoleBinding, error) {
	var rb state.RoleBinding
	err := m.view(func(tx *state.Tx) error {
		var err error
		rb, err = tx.Roles(pid)
		return err
	})
	return rb, err
}

// IsAllowed reports whether addr holds a read grant for pid.
func (m *Machine) IsAllowed(pid ids.ID, addr common.Address) (bool, error) {
	var ok bool
	err := m.view(func(tx *state.Tx) error {
		var err error
		ok, err = access.IsAllowed(tx, pid, addr)
		return err
	})
	return ok, err
}

func (m *Machine) Owner() (common.Address, error) {
	var owner common.Address
	err := m.view(func(tx *state.Tx) error {
		var err error
		owner, err = tx.Owner()
		return err
	})
	return owner, err
}

func (m *Machine) InsurerBalance(insurer common.Address) (*big.Int, error) {
	var bal *big.Int
	err := m.view(func(tx *state.Tx) error {
		var err error
		bal, err = tx.InsurerBalance(insurer)
		return err
	})
	return bal, err
}

// ContractBalance is the aggregate native balance held by the vault.
func (m *Machine) ContractBalance() (*big.Int, error) {
	var bal *big.Int
	err := m.view(func(tx *state.Tx) error {
		var err error
		bal, err = tx.ContractBalance()
		return err
	})
	return bal, err
}

func (m *Machine) CollectedFees(collector common.Address) (*big.Int, error) {
	var bal *big.Int
	err := m.view(func(tx *state.Tx) error {
		var err error
		bal, err = tx.CollectedFees(collector)
		return err
	})
	return bal, err
}

func (m *Machine) Fees() (state.FeeConfig, error) {
	var fees state.FeeConfig
	err := m.view(func(tx *state.Tx) error {
		var err error
		fees, err = tx.Fees()
		return err
	})
	return fees, err
}

func (m *Machine) Oracles() (state.OracleConfig, error) {
	var cfg state.OracleConfig
	err := m.view(func(tx *state.Tx) error {
		var err error
		cfg, err = tx.Oracles()
		return err
	})
	return cfg, err
}

// Quote prices one XRP-paid upload at the current feed price.
func (m *Machine) Quote(ctx context.Context) (oracle.Quote, error) {
	var q oracle.Quote
	err := m.view(func(tx *state.Tx) error {
		var err error
		q, err = m.bridge.RequiredAmount(ctx, tx)
		return err
	})
	return q, err
}

// Events returns journaled events with Seq >= from, oldest first.
func (m *Machine) Events(from uint64, limit int) ([]events.Event, error) {
	var out []events.Event
	err := m.view(func(tx *state.Tx) error {
		var err error
		out, err = events.List(tx, from, limit)
		return err
	})
	return out, err
}

// Status summarizes the vault for health and CLI output.
type Status struct {
	Initialized     bool           `json:"initialized"`
	Genesis         string         `json:"genesis,omitempty"`
	Owner           common.Address `json:"owner"`
	HeadSeq         uint64         `json:"headSeq"`
	HeadHash        string         `json:"headHash"`
	ContractBalance *big.Int       `json:"contractBalanceWei"`
}

func (m *Machine) Status() (Status, error) {
	var st Status
	err := m.view(func(tx *state.Tx) error {
		gen, ok, err := tx.Genesis()
		if err != nil {
			return err
		}
		st.Initialized = ok
		if ok {
			st.Genesis = gen.Hex()
		}
		if st.Owner, err = tx.Owner(); err != nil {
			return err
		}
		if st.HeadSeq, st.HeadHash, err = events.Head(tx); err != nil {
			return err
		}
		st.ContractBalance, err = tx.ContractBalance()
		return err
	})
	return st, err
}

// VerifyJournal recomputes the event hash chain and returns the first broken
// sequence number, or 0.
func (m *Machine) VerifyJournal() (uint64, error) {
	var broken uint64
	err := m.view(func(tx *state.Tx) error {
		var err error
		broken, err = events.VerifyChain(tx)
		return err
	})
	return broken, err
}

// Checkpoint seals the journal range [from, to] under a Merkle root. A to of 0
// means the current head.
func (m *Machine) Checkpoint(from, to uint64) (events.Checkpoint, error) {
	var cp events.Checkpoint
	err := m.view(func(tx *state.Tx) error {
		var err error
		cp, err = events.BuildCheckpoint(tx, from, to, m.now())
		if errors.Is(err, events.ErrEmptyRange) {
			return errs.InvalidArgument("empty event range")
		}
		return err
	})
	return cp, err
}
