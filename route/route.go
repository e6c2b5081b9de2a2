// Package route holds the immutable result of a route search.
package route

import (
	"math"
	"math/big"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
)

const bpsDivisor = 10_000

// Leg is one hop of a Route, trading through a single pool.
type Leg struct {
	Code     pool.Code
	TokenIn  token.Token
	TokenOut token.Token
	// Share is the fraction of the route's input amount routed through this leg.
	Share     float64
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
}

// Route is an ordered plan of legs converting AmountIn of TokenIn into TokenOut.
// A Route is never mutated after construction.
type Route struct {
	TokenIn     token.Token
	TokenOut    token.Token
	AmountIn    *big.Int
	AmountOut   *big.Int
	PriceImpact float64
	GasSpent    uint64
	// GasCost is GasSpent priced at the request's max gas price, in wei.
	GasCost *big.Int
	Legs    []Leg
}

// Path returns the pool identities in leg order.
func (r *Route) Path() []pool.ID {
	if r == nil {
		return nil
	}
	ids := make([]pool.ID, len(r.Legs))
	for i, l := range r.Legs {
		ids[i] = l.Code.ID()
	}
	return ids
}

func (r *Route) Hops() int {
	if r == nil {
		return 0
	}
	return len(r.Legs)
}

// SamePath reports whether both routes trade through the same pools in the same direction and order.
func (r *Route) SamePath(other *Route) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.Legs) != len(other.Legs) {
		return false
	}
	for i := range r.Legs {
		a, b := r.Legs[i], other.Legs[i]
		if a.Code.ID() != b.Code.ID() || !a.TokenIn.Equal(b.TokenIn) || !a.TokenOut.Equal(b.TokenOut) {
			return false
		}
	}
	return true
}

// RelativeChange returns |r.AmountOut - prev.AmountOut| / prev.AmountOut.
// A change from zero to non-zero is +Inf.
func (r *Route) RelativeChange(prev *Route) float64 {
	if r == nil || prev == nil || r.AmountOut == nil || prev.AmountOut == nil {
		return math.Inf(1)
	}
	if prev.AmountOut.Sign() == 0 {
		if r.AmountOut.Sign() == 0 {
			return 0
		}
		return math.Inf(1)
	}
	diff := new(big.Int).Sub(r.AmountOut, prev.AmountOut)
	diff.Abs(diff)
	change, _ := new(big.Rat).SetFrac(diff, prev.AmountOut).Float64()
	return change
}

// AmountOutMin is the slippage-protected minimum output, rounding down.
func (r *Route) AmountOutMin(slippageBps uint32) *big.Int {
	if r == nil || r.AmountOut == nil {
		return new(big.Int)
	}
	if slippageBps >= bpsDivisor {
		return new(big.Int)
	}
	out := new(big.Int).Mul(r.AmountOut, big.NewInt(int64(bpsDivisor-slippageBps)))
	return out.Quo(out, big.NewInt(bpsDivisor))
}
