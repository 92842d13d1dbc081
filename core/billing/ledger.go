// Package billing keeps the insurer escrow balances, the fee schedule and the
// vault's aggregate native balance.
package billing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"medvault/core/access"
	"medvault/core/errs"
	"medvault/core/state"
	"medvault/types/ids"
)

// Transferer moves native funds out of the vault. It is the only external
// interaction billing performs and is always invoked after the ledger effects
// have been committed.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Deposit credits the insurer bound to pid with value and returns the insurer
// and its new balance.
func Deposit(tx *state.Tx, pid ids.ID, value *big.Int) (common.Address, *big.Int, error) {
	if value == nil || value.Sign() <= 0 {
		return common.Address{}, nil, errs.InvalidArgument(errs.ReasonZeroAmount)
	}
	rb, err := tx.Roles(pid)
	if err != nil {
		return common.Address{}, nil, err
	}
	if rb.Insurer == (common.Address{}) {
		return common.Address{}, nil, errs.NotFound(errs.ReasonNoInsurer)
	}
	balance, err := tx.InsurerBalance(rb.Insurer)
	if err != nil {
		return common.Address{}, nil, err
	}
	balance.Add(balance, value)
	if err := tx.PutInsurerBalance(rb.Insurer, balance); err != nil {
		return common.Address{}, nil, err
	}
	if err := credit(tx, value); err != nil {
		return common.Address{}, nil, err
	}
	return rb.Insurer, balance, nil
}

// Debit subtracts amount from the insurer's escrow or fails without writing.
func Debit(tx *state.Tx, insurer common.Address, amount *big.Int) (*big.Int, error) {
	balance, err := tx.InsurerBalance(insurer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errs.InsufficientBalance(errs.ReasonInsurerBalanceLow)
	}
	balance.Sub(balance, amount)
	if err := tx.PutInsurerBalance(insurer, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// ReadCharge is the outcome of charging one read.
type ReadCharge struct {
	Insurer   common.Address
	Fee       *big.Int
	Collector common.Address
	Remaining *big.Int
}

// ChargeRead debits the access fee from the insurer bound to pid.
func ChargeRead(tx *state.Tx, pid ids.ID) (ReadCharge, error) {
	rb, err := tx.Roles(pid)
	if err != nil {
		return ReadCharge{}, err
	}
	if rb.Insurer == (common.Address{}) {
		return ReadCharge{}, errs.InsufficientBalance(errs.ReasonInsurerBalanceLow)
	}
	fees, err := tx.Fees()
	if err != nil {
		return ReadCharge{}, err
	}
	fee := new(big.Int).Set(fees.AccessFeeWei)
	if fee.Sign() > 0 && fees.FeeCollector == (common.Address{}) {
		return ReadCharge{}, errs.Configuration(errs.ReasonCollectorNotSet)
	}
	remaining, err := Debit(tx, rb.Insurer, fee)
	if err != nil {
		return ReadCharge{}, err
	}
	if err := accrue(tx, fees.FeeCollector, fee); err != nil {
		return ReadCharge{}, err
	}
	return ReadCharge{Insurer: rb.Insurer, Fee: fee, Collector: fees.FeeCollector, Remaining: remaining}, nil
}

// ReceiveUploadPayment books a native upload payment: the whole value enters
// the aggregate balance and the fee part accrues to the collector.
func ReceiveUploadPayment(tx *state.Tx, fees state.FeeConfig, value *big.Int) error {
	if err := credit(tx, value); err != nil {
		return err
	}
	return accrue(tx, fees.FeeCollector, fees.UploadFeeWei)
}

func credit(tx *state.Tx, value *big.Int) error {
	total, err := tx.ContractBalance()
	if err != nil {
		return err
	}
	return tx.PutContractBalance(total.Add(total, value))
}

func accrue(tx *state.Tx, collector common.Address, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	collected, err := tx.CollectedFees(collector)
	if err != nil {
		return err
	}
	return tx.PutCollectedFees(collector, collected.Add(collected, fee))
}

func checkCollector(fee *big.Int, collector common.Address) error {
	if fee == nil || fee.Sign() < 0 {
		return errs.InvalidArgument("negative fee")
	}
	if fee.Sign() > 0 && collector == (common.Address{}) {
		return errs.Configuration(errs.ReasonCollectorNotSet)
	}
	return nil
}

// SetAccessFee sets the per-read fee and the collector credited with it.
func SetAccessFee(tx *state.Tx, caller common.Address, feeWei *big.Int, collector common.Address) (state.FeeConfig, error) {
	if err := access.RequireOwner(tx, caller); err != nil {
		return state.FeeConfig{}, err
	}
	if err := checkCollector(feeWei, collector); err != nil {
		return state.FeeConfig{}, err
	}
	fees, err := tx.Fees()
	if err != nil {
		return state.FeeConfig{}, err
	}
	fees.AccessFeeWei = new(big.Int).Set(feeWei)
	fees.FeeCollector = collector
	return fees, tx.PutFees(fees)
}

// SetUploadFees sets the native upload fee and the USD-cent fee quoted for
// cross-chain uploads.
func SetUploadFees(tx *state.Tx, caller common.Address, feeWei *big.Int, usdCents uint64, collector common.Address) (state.FeeConfig, error) {
	if err := access.RequireOwner(tx, caller); err != nil {
		return state.FeeConfig{}, err
	}
	if err := checkCollector(feeWei, collector); err != nil {
		return state.FeeConfig{}, err
	}
	fees, err := tx.Fees()
	if err != nil {
		return state.FeeConfig{}, err
	}
	fees.UploadFeeWei = new(big.Int).Set(feeWei)
	fees.UploadFeeUSDCents = usdCents
	fees.FeeCollector = collector
	return fees, tx.PutFees(fees)
}

// SetMaxOracleStaleness bounds the age of price readings accepted by quotes.
func SetMaxOracleStaleness(tx *state.Tx, caller common.Address, seconds uint64) (state.FeeConfig, error) {
	if err := access.RequireOwner(tx, caller); err != nil {
		return state.FeeConfig{}, err
	}
	fees, err := tx.Fees()
	if err != nil {
		return state.FeeConfig{}, err
	}
	fees.MaxOracleStalenessSeconds = seconds
	return fees, tx.PutFees(fees)
}

// ReserveWithdrawal is the effects half of a withdrawal: it checks the owner
// and the aggregate balance and stages the decrement. The transfer itself
// happens only after this has been committed.
func ReserveWithdrawal(tx *state.Tx, caller, to common.Address, amount *big.Int) (*big.Int, error) {
	if err := access.RequireOwner(tx, caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, errs.InvalidArgument(errs.ReasonZeroAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errs.InvalidArgument(errs.ReasonZeroAmount)
	}
	total, err := tx.ContractBalance()
	if err != nil {
		return nil, err
	}
	if total.Cmp(amount) < 0 {
		return nil, errs.InsufficientBalance(errs.ReasonInsufficientContractFunds)
	}
	total.Sub(total, amount)
	return total, tx.PutContractBalance(total)
}

// RestoreWithdrawal compensates a reserved withdrawal whose transfer failed.
func RestoreWithdrawal(tx *state.Tx, amount *big.Int) error {
	return credit(tx, amount)
}
