// Package uniswapv3 implements concentrated-liquidity pools quoted within
// their active liquidity range, and a provider that discovers them through the
// factory contract for each configured fee tier.
package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// feeDenominator expresses fees in hundredths of a basis point, e.g. 3000 is 0.3%.
	feeDenominator            = 1_000_000
	DefaultGasEstimate uint64 = 130_000
)

// DefaultFeeTiers are the tiers enabled on the canonical factory.
var DefaultFeeTiers = []uint32{100, 500, 3000, 10000}

// Pool is an immutable snapshot of a pool's price and in-range liquidity.
//
// Quotes assume the swap stays inside the active tick range: tick crossings
// are not simulated, so quotes for trades large enough to leave the range are
// optimistic.
type Pool struct {
	address      common.Address
	token0       token.Token
	token1       token.Token
	fee          uint32
	tick         int32
	sqrtPriceX96 *uint256.Int
	liquidity    *uint256.Int
	gas          uint64
}

var _ pool.Pool = (*Pool)(nil)

// NewPool builds a snapshot. token0 must sort before token1.
func NewPool(address common.Address, token0, token1 token.Token, fee uint32, sqrtPriceX96, liquidity *big.Int, tick int32, gas uint64) (*Pool, error) {
	if !token0.Less(token1) {
		return nil, fmt.Errorf("uniswapv3: pool %s tokens are not ordered", address.Hex())
	}
	if fee >= feeDenominator {
		return nil, fmt.Errorf("uniswapv3: pool %s fee %d out of range", address.Hex(), fee)
	}
	if sqrtPriceX96 == nil || liquidity == nil || sqrtPriceX96.Sign() < 0 || liquidity.Sign() < 0 {
		return nil, fmt.Errorf("uniswapv3: pool %s has invalid state", address.Hex())
	}
	sqrtPrice, overflow := uint256.FromBig(sqrtPriceX96)
	if overflow {
		return nil, fmt.Errorf("uniswapv3: pool %s sqrt price overflows", address.Hex())
	}
	liq, overflow := uint256.FromBig(liquidity)
	if overflow {
		return nil, fmt.Errorf("uniswapv3: pool %s liquidity overflows", address.Hex())
	}
	if gas == 0 {
		gas = DefaultGasEstimate
	}
	return &Pool{
		address:      address,
		token0:       token0,
		token1:       token1,
		fee:          fee,
		tick:         tick,
		sqrtPriceX96: sqrtPrice,
		liquidity:    liq,
		gas:          gas,
	}, nil
}

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Tokens() (token.Token, token.Token) { return p.token0, p.token1 }

func (p *Pool) GasEstimate() uint64 { return p.gas }

func (p *Pool) Fee() uint32 { return p.fee }

func (p *Pool) Tick() int32 { return p.tick }

func (p *Pool) SqrtPriceX96() *big.Int { return p.sqrtPriceX96.ToBig() }

func (p *Pool) Liquidity() *big.Int { return p.liquidity.ToBig() }

// WithState returns a new snapshot carrying fresh slot0 and liquidity values.
func (p *Pool) WithState(sqrtPriceX96, liquidity *big.Int, tick int32) (*Pool, error) {
	return NewPool(p.address, p.token0, p.token1, p.fee, sqrtPriceX96, liquidity, tick, p.gas)
}

// SameState reports whether both snapshots hold identical price and liquidity.
func (p *Pool) SameState(other *Pool) bool {
	return other != nil && p.tick == other.tick && p.sqrtPriceX96.Eq(other.sqrtPriceX96) && p.liquidity.Eq(other.liquidity)
}

func (p *Pool) Quote(amountIn *big.Int, tokenIn token.Token) (pool.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return pool.Quote{}, pool.ErrInvalidAmount
	}
	var zeroForOne bool
	switch {
	case tokenIn.Equal(p.token0):
		zeroForOne = true
	case tokenIn.Equal(p.token1):
	default:
		return pool.Quote{}, fmt.Errorf("%w: pool %s does not contain %s", pool.ErrTokenMismatch, p.address.Hex(), tokenIn)
	}

	amount, overflow := uint256.FromBig(amountIn)
	if overflow {
		return pool.Quote{}, fmt.Errorf("%w: amount overflows uint256", pool.ErrInvalidAmount)
	}
	fee := feeAmount(amount, p.fee)
	amountLessFee := new(uint256.Int).Sub(amount, fee)

	var out *uint256.Int
	if zeroForOne {
		out, overflow = amount1Out(p.sqrtPriceX96, p.liquidity, amountLessFee)
	} else {
		out, overflow = amount0Out(p.sqrtPriceX96, p.liquidity, amountLessFee)
	}
	if overflow {
		return pool.Quote{}, fmt.Errorf("%w: pool %s cannot price %s", pool.ErrInsufficientLiquidity, p.address.Hex(), amountIn)
	}
	return pool.Quote{AmountOut: out.ToBig(), Fee: fee.ToBig()}, nil
}
