package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/billing"
	"medvault/core/errs"
	"medvault/core/events"
	"medvault/core/state"
	"medvault/types/ids"
)

// Withdraw pays amount out of the aggregate balance to to. The decrement is
// committed before the transfer runs and the machine lock is released during
// the transfer, so a recipient that calls back into the vault sees the
// reduced balance. A failed transfer is compensated in a second transaction.
func (m *Machine) Withdraw(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	err := m.apply(ctx, "Withdraw", caller, func(tx *state.Tx) (events.Event, error) {
		remaining, err := billing.ReserveWithdrawal(tx, caller, to, amount)
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.FundsWithdrawn, caller, ids.Empty, map[string]string{
			"to":           to.Hex(),
			"amountWei":    amount.String(),
			"remainingWei": remaining.String(),
		}), nil
	})
	if err != nil {
		return err
	}

	terr := m.payout.Transfer(ctx, to, amount)
	if terr == nil {
		m.log.Info().Str("to", to.Hex()).Str("amount", amount.String()).Msg("withdrawal settled")
		return nil
	}

	m.log.Error().Err(terr).Str("to", to.Hex()).Str("amount", amount.String()).Msg("[RECOVERY] transfer failed, restoring balance")
	rerr := m.apply(context.WithoutCancel(ctx), "RestoreWithdrawal", caller, func(tx *state.Tx) (events.Event, error) {
		if err := billing.RestoreWithdrawal(tx, amount); err != nil {
			return events.Event{}, err
		}
		return events.New(events.WithdrawalReverted, caller, ids.Empty, map[string]string{
			"to":        to.Hex(),
			"amountWei": amount.String(),
			"error":     terr.Error(),
		}), nil
	})
	if rerr != nil {
		m.log.Error().Err(rerr).Str("amount", amount.String()).Msg("[RECOVERY] balance restore failed")
	}
	return errs.Internal(errs.ReasonTransferFailed, terr)
}
