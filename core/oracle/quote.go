package oracle

import (
	"math/big"
	"time"

	"medvault/core/errs"
)

// Quote is the XRP-denominated price of one upload.
type Quote struct {
	Drops       *big.Int  `json:"drops"`
	FeeUSDCents uint64    `json:"feeUsdCents"`
	Price       *big.Int  `json:"price"`
	Decimals    uint8     `json:"decimals"`
	Timestamp   time.Time `json:"timestamp"`
}

// ComputeDrops converts a USD-cent fee into drops through a fixed-point
// XRP/USD price:
//
//	drops = ceil(usdCents * 10^decimals * DropsPerXRP / (price * 100))
//
// Rounding is always up so the vault is never underpaid.
func ComputeDrops(usdCents uint64, price *big.Int, decimals uint8) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, errs.New(errs.KindOracle, errs.ReasonZeroPrice)
	}
	num := new(big.Int).SetUint64(usdCents)
	num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	num.Mul(num, big.NewInt(DropsPerXRP))

	den := new(big.Int).Mul(price, big.NewInt(100))

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// checkFresh rejects snapshots older than maxAge at now.
func checkFresh(snap PriceSnapshot, now time.Time, maxAge time.Duration) error {
	if now.Sub(snap.Timestamp) > maxAge {
		return errs.New(errs.KindStaleOracle, errs.ReasonStaleOracle)
	}
	return nil
}
