package uniswapv2

import (
	"math/big"
	"sync"

	"github.com/defistate/defistate-router-go/pool"
)

const basisPoints = 10_000

var basisPointDivisor = big.NewInt(basisPoints)

// calculator holds reusable big.Int scratch space. Instances are not safe for
// concurrent use by themselves and are handed out by calculatorPool.
type calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
		}
	},
}

// GetAmountOut returns the output of selling amountIn against (reserveIn, reserveOut):
//
//	out = reserveOut * amountIn * (10000 - fee) / (reserveIn * 10000 + amountIn * (10000 - fee))
//
// An empty reserve yields zero output.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, pool.ErrInvalidAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	c := calculatorPool.Get().(*calculator)
	defer calculatorPool.Put(c)

	c.feeMultiplier.SetInt64(int64(basisPoints - int(feeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	return new(big.Int).Quo(c.numerator, c.denominator), nil
}

// FeeAmount is the part of amountIn kept by the pool as LP fee.
func FeeAmount(amountIn *big.Int, feeBps uint16) *big.Int {
	fee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeBps)))
	return fee.Quo(fee, basisPointDivisor)
}
