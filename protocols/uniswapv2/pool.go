// Package uniswapv2 implements constant-product pools (Uniswap V2 and its forks)
// and a provider that discovers them through the factory contract.
package uniswapv2

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultFeeBps      uint16 = 30 // 0.3%
	DefaultGasEstimate uint64 = 90_000
)

// Pool is an immutable snapshot of a constant-product pair.
type Pool struct {
	address  common.Address
	token0   token.Token
	token1   token.Token
	reserve0 *big.Int
	reserve1 *big.Int
	feeBps   uint16
	gas      uint64
}

var _ pool.Pool = (*Pool)(nil)

// NewPool builds a snapshot. The tokens may be given in any order; reserves
// follow the order of the tokens as given.
func NewPool(address common.Address, tokenA, tokenB token.Token, reserveA, reserveB *big.Int, feeBps uint16, gas uint64) (*Pool, error) {
	if tokenA.Equal(tokenB) {
		return nil, fmt.Errorf("uniswapv2: pool %s has identical tokens", address.Hex())
	}
	if reserveA == nil || reserveB == nil || reserveA.Sign() < 0 || reserveB.Sign() < 0 {
		return nil, fmt.Errorf("uniswapv2: pool %s has invalid reserves", address.Hex())
	}
	if feeBps >= uint16(basisPoints) {
		return nil, fmt.Errorf("uniswapv2: pool %s fee %d bps out of range", address.Hex(), feeBps)
	}
	if gas == 0 {
		gas = DefaultGasEstimate
	}
	p := &Pool{address: address, feeBps: feeBps, gas: gas}
	if tokenB.Less(tokenA) {
		tokenA, tokenB = tokenB, tokenA
		reserveA, reserveB = reserveB, reserveA
	}
	p.token0, p.token1 = tokenA, tokenB
	p.reserve0 = new(big.Int).Set(reserveA)
	p.reserve1 = new(big.Int).Set(reserveB)
	return p, nil
}

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Tokens() (token.Token, token.Token) { return p.token0, p.token1 }

func (p *Pool) GasEstimate() uint64 { return p.gas }

func (p *Pool) FeeBps() uint16 { return p.feeBps }

// Reserves returns copies of (reserve0, reserve1).
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// WithReserves returns a new snapshot with updated reserves.
func (p *Pool) WithReserves(reserve0, reserve1 *big.Int) *Pool {
	next := *p
	next.reserve0 = new(big.Int).Set(reserve0)
	next.reserve1 = new(big.Int).Set(reserve1)
	return &next
}

// SameState reports whether both snapshots hold identical reserves.
func (p *Pool) SameState(other *Pool) bool {
	return other != nil && p.reserve0.Cmp(other.reserve0) == 0 && p.reserve1.Cmp(other.reserve1) == 0
}

func (p *Pool) Quote(amountIn *big.Int, tokenIn token.Token) (pool.Quote, error) {
	reserveIn, reserveOut, err := p.reservesFor(tokenIn)
	if err != nil {
		return pool.Quote{}, err
	}
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut, p.feeBps)
	if err != nil {
		return pool.Quote{}, err
	}
	return pool.Quote{AmountOut: out, Fee: FeeAmount(amountIn, p.feeBps)}, nil
}

// reservesFor returns (reserveIn, reserveOut) for a swap selling tokenIn.
func (p *Pool) reservesFor(tokenIn token.Token) (*big.Int, *big.Int, error) {
	switch {
	case tokenIn.Equal(p.token0):
		return p.reserve0, p.reserve1, nil
	case tokenIn.Equal(p.token1):
		return p.reserve1, p.reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain %s", pool.ErrTokenMismatch, p.address.Hex(), tokenIn)
}
