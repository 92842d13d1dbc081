package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/events"
	"medvault/core/state"
)

// Binder serves the node's own price feed and attestation verifier at
// whichever oracle addresses the vault currently binds. It follows
// OracleChanged events so a rebinding takes effect without a restart.
// A nil Feed or Verifier leaves that role unserved.
type Binder struct {
	Dir      *StaticDirectory
	Feed     PriceFeed
	Verifier AttestationVerifier
}

// Bind registers the capabilities at the addresses in cfg.
func (b *Binder) Bind(cfg state.OracleConfig) {
	b.bind("ftso", cfg.FTSO)
	b.bind("fdc", cfg.FDC)
}

func (b *Binder) bind(role string, addr common.Address) {
	if addr == (common.Address{}) {
		return
	}
	switch {
	case role == "ftso" && b.Feed != nil:
		b.Dir.RegisterPriceFeed(addr, b.Feed)
	case role == "fdc" && b.Verifier != nil:
		b.Dir.RegisterVerifier(addr, b.Verifier)
	}
}

func (b *Binder) Publish(_ context.Context, evs []events.Event) error {
	for _, ev := range evs {
		if ev.Type != events.OracleChanged {
			continue
		}
		if raw := ev.Fields["address"]; common.IsHexAddress(raw) {
			b.bind(ev.Fields["role"], common.HexToAddress(raw))
		}
	}
	return nil
}
