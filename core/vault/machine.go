// Package vault is the medical-record vault state machine. It owns the
// state backend and applies every operation as one serialized transaction:
// authorize, stage the transition, journal one event, commit. A failed
// operation discards its staged writes and leaves no trace in state.
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"medvault/core/audit"
	"medvault/core/billing"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/genesis"
	"medvault/core/logging"
	"medvault/core/oracle"
	"medvault/core/settlement"
	"medvault/core/state"
	"medvault/core/storage"
	"medvault/types/ids"
)

// Machine serializes all vault operations. Mutations hold the write lock for
// their whole transaction; queries share the read lock.
type Machine struct {
	mu      sync.RWMutex
	backend storage.StateBackend
	bridge  *oracle.Bridge
	payout  billing.Transferer
	sink    events.Sink
	audit   audit.AuditLogger
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func WithLogger(log zerolog.Logger) Option { return func(m *Machine) { m.log = log } }

func WithTransferer(t billing.Transferer) Option { return func(m *Machine) { m.payout = t } }

func WithSink(s events.Sink) Option { return func(m *Machine) { m.sink = s } }

func WithAuditLogger(a audit.AuditLogger) Option { return func(m *Machine) { m.audit = a } }

// New builds a machine over backend. Oracle addresses bound in state are
// resolved through dir.
func New(backend storage.StateBackend, dir oracle.Directory, opts ...Option) *Machine {
	m := &Machine{
		backend: backend,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.Component(m.log, "vault")
	if m.payout == nil {
		m.payout = settlement.NewLogTransferer(m.log)
	}
	if m.sink == nil {
		m.sink = events.NewLogSink(m.log)
	}
	if m.audit == nil {
		m.audit = audit.NewZerologAuditLogger(m.log)
	}
	m.bridge = oracle.NewBridge(dir, m.now)
	return m
}

// transition stages one state change on tx and describes it.
type transition func(tx *state.Tx) (events.Event, error)

// commitLocked runs fn on a fresh transaction, journals its event and
// commits. The caller holds m.mu.
func (m *Machine) commitLocked(fn transition) (events.Event, error) {
	tx := state.Begin(m.backend)
	ok, err := tx.Initialized()
	if err != nil {
		return events.Event{}, errs.Internal("state read failed", err)
	}
	if !ok {
		return events.Event{}, errs.Configuration(errs.ReasonNotInitialized)
	}
	return m.finish(tx, fn)
}

func (m *Machine) finish(tx *state.Tx, fn transition) (events.Event, error) {
	ev, err := fn(tx)
	if err != nil {
		return events.Event{}, asVaultError(err)
	}
	ev, err = events.Append(tx, ev, m.now())
	if err != nil {
		return events.Event{}, errs.Internal("journal failed", err)
	}
	if err := tx.Commit(); err != nil {
		return events.Event{}, errs.Internal("commit failed", err)
	}
	return ev, nil
}

// apply is the path every mutation takes.
func (m *Machine) apply(ctx context.Context, op string, caller common.Address, fn transition) error {
	m.mu.Lock()
	ev, err := m.commitLocked(fn)
	m.mu.Unlock()
	if err != nil {
		m.reject(op, caller, err)
		return err
	}
	m.publish(ctx, ev)
	return nil
}

func (m *Machine) publish(ctx context.Context, ev events.Event) {
	if err := m.sink.Publish(ctx, []events.Event{ev}); err != nil {
		m.log.Warn().Err(err).Uint64("seq", ev.Seq).Msg("event sink failed")
	}
}

func (m *Machine) reject(op string, caller common.Address, err error) {
	m.audit.LogEvent(audit.AuditEvent{
		Timestamp: m.now().UTC(),
		EventType: op,
		EntityID:  caller.Hex(),
		Result:    "failure",
		Reason:    errs.ReasonOf(err),
		Metadata:  map[string]string{"kind": string(errs.KindOf(err))},
	})
}

// asVaultError leaves vault errors alone and wraps anything else (storage,
// encoding) as internal.
func asVaultError(err error) error {
	if _, ok := err.(*errs.Error); ok {
		return err
	}
	return errs.Internal("state operation failed", err)
}

// view runs fn against a read-only transaction under the read lock.
func (m *Machine) view(fn func(tx *state.Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := fn(state.Begin(m.backend)); err != nil {
		return asVaultError(err)
	}
	return nil
}

// Init applies a genesis document to an empty vault.
func (m *Machine) Init(ctx context.Context, cfg *genesis.Config) error {
	if err := cfg.Validate(); err != nil {
		return errs.New(errs.KindConfiguration, err.Error())
	}
	hash, err := cfg.Hash()
	if err != nil {
		return errs.Internal("genesis hash failed", err)
	}
	fees, err := cfg.FeeConfig()
	if err != nil {
		return errs.New(errs.KindConfiguration, err.Error())
	}
	owner := cfg.OwnerAddress()

	m.mu.Lock()
	tx := state.Begin(m.backend)
	var ev events.Event
	ok, err := tx.Initialized()
	switch {
	case err != nil:
		err = errs.Internal("state read failed", err)
	case ok:
		err = errs.Configuration(errs.ReasonAlreadyInitialized)
	default:
		ev, err = m.finish(tx, func(tx *state.Tx) (events.Event, error) {
			if err := tx.SetOwner(owner); err != nil {
				return events.Event{}, err
			}
			if err := tx.PutFees(fees); err != nil {
				return events.Event{}, err
			}
			if err := tx.PutOracles(cfg.OracleConfig()); err != nil {
				return events.Event{}, err
			}
			if err := tx.MarkInitialized(hash); err != nil {
				return events.Event{}, err
			}
			return events.New(events.GenesisApplied, owner, ids.Empty, map[string]string{
				"vaultId": cfg.VaultID,
				"genesis": hash.Hex(),
				"owner":   owner.Hex(),
			}), nil
		})
	}
	m.mu.Unlock()
	if err != nil {
		m.reject("Init", owner, err)
		return err
	}
	m.log.Info().Str("vault", cfg.VaultID).Str("owner", owner.Hex()).Str("genesis", hash.Hex()).Msg("genesis applied")
	m.publish(ctx, ev)
	return nil
}

// Initialized reports whether genesis has been applied.
func (m *Machine) Initialized() (bool, error) {
	var ok bool
	err := m.view(func(tx *state.Tx) error {
		var err error
		ok, err = tx.Initialized()
		return err
	})
	return ok, err
}
