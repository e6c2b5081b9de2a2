// Package pathfinder searches a registry snapshot for the conversion path
// with the largest output, bounded by a maximum number of hops.
package pathfinder

import (
	"errors"
	"math/big"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/registry"
	"github.com/defistate/defistate-router-go/route"
	"github.com/defistate/defistate-router-go/token"
)

const (
	DefaultMaxHops = 3
	// probeDivisor sizes the marginal-price probe used for price impact.
	probeDivisor = 1_000
)

// DefaultGasPrice is used when a request carries no gas price: 30 gwei.
var DefaultGasPrice = big.NewInt(30_000_000_000)

var ErrInvalidAmount = errors.New("pathfinder: amount in must be positive")

// Finder is stateless apart from its hop bound and safe for concurrent use.
type Finder struct {
	maxHops int
}

// New returns a Finder limited to maxHops legs; values below one use DefaultMaxHops.
func New(maxHops int) *Finder {
	if maxHops < 1 {
		maxHops = DefaultMaxHops
	}
	return &Finder{maxHops: maxHops}
}

func (f *Finder) MaxHops() int { return f.maxHops }

// vertexState is the best known way to reach one token.
type vertexState struct {
	amount *big.Int
	legs   []route.Leg
	known  bitset
}

// FindBestRoute returns the route from tokenIn to tokenOut with the largest
// output, or nil when the snapshot holds no path within the hop bound.
//
// The search runs one relaxation round per hop. Each round only extends paths
// found in the previous one, so no route exceeds the hop bound, and a path
// never revisits a token.
func (f *Finder) FindBestRoute(snap *registry.Snapshot, tokenIn token.Token, amountIn *big.Int, tokenOut token.Token, maxGasPrice *big.Int) (*route.Route, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if snap == nil || tokenIn.Equal(tokenOut) {
		return nil, nil
	}
	g := snap.Graph()
	start, ok := g.TokenIndex(tokenIn)
	if !ok {
		return nil, nil
	}
	end, ok := g.TokenIndex(tokenOut)
	if !ok {
		return nil, nil
	}

	n := g.NumTokens()
	current := make([]*vertexState, n)
	current[start] = &vertexState{amount: new(big.Int).Set(amountIn), known: newBitset(n)}

	for hop := 0; hop < f.maxHops; hop++ {
		next := make([]*vertexState, n)
		copy(next, current)
		improved := false

		for from, state := range current {
			if state == nil || state.amount.Sign() == 0 || from == end {
				continue
			}
			if f.relax(g, from, state, next) {
				improved = true
			}
		}
		current = next
		if !improved {
			break
		}
	}

	best := current[end]
	if best == nil || len(best.legs) == 0 {
		return nil, nil
	}
	return buildRoute(tokenIn, tokenOut, amountIn, best, maxGasPrice), nil
}

// relax extends the path reaching `from` over every outgoing edge, picking the
// best pool per edge, and records improvements in next.
func (f *Finder) relax(g *registry.Graph, from int, state *vertexState, next []*vertexState) bool {
	improved := false
	tokenFrom := g.Tokens[from]

	for _, edge := range g.Adjacency[from] {
		target := g.EdgeTargets[edge]
		if target == from || state.known.has(target) {
			continue
		}
		tokenTo := g.Tokens[target]

		var (
			bestQuote pool.Quote
			bestCode  = -1
		)
		for _, ci := range g.EdgePools[edge] {
			q, err := g.Codes[ci].Pool.Quote(state.amount, tokenFrom)
			if err != nil || q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
				continue
			}
			if bestCode == -1 || q.AmountOut.Cmp(bestQuote.AmountOut) > 0 {
				bestQuote, bestCode = q, ci
			}
		}
		if bestCode == -1 {
			continue
		}

		if existing := next[target]; existing != nil && existing.amount.Cmp(bestQuote.AmountOut) >= 0 {
			continue
		}

		legs := make([]route.Leg, len(state.legs), len(state.legs)+1)
		copy(legs, state.legs)
		legs = append(legs, route.Leg{
			Code:      g.Codes[bestCode],
			TokenIn:   tokenFrom,
			TokenOut:  tokenTo,
			Share:     1,
			AmountIn:  new(big.Int).Set(state.amount),
			AmountOut: bestQuote.AmountOut,
			Fee:       bestQuote.Fee,
		})
		next[target] = &vertexState{
			amount: bestQuote.AmountOut,
			legs:   legs,
			known:  state.known.with(from),
		}
		improved = true
	}
	return improved
}

func buildRoute(tokenIn, tokenOut token.Token, amountIn *big.Int, best *vertexState, maxGasPrice *big.Int) *route.Route {
	if maxGasPrice == nil || maxGasPrice.Sign() <= 0 {
		maxGasPrice = DefaultGasPrice
	}
	var gas uint64
	for _, l := range best.legs {
		gas += l.Code.Pool.GasEstimate()
	}
	return &route.Route{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   new(big.Int).Set(best.amount),
		PriceImpact: priceImpact(best.legs, amountIn, best.amount),
		GasSpent:    gas,
		GasCost:     new(big.Int).Mul(new(big.Int).SetUint64(gas), maxGasPrice),
		Legs:        best.legs,
	}
}

// priceImpact compares the realized rate with the marginal rate of the same
// path, measured by pushing a small probe amount through it.
func priceImpact(legs []route.Leg, amountIn, amountOut *big.Int) float64 {
	probe := new(big.Int).Quo(amountIn, big.NewInt(probeDivisor))
	if probe.Sign() == 0 {
		return 0
	}
	probeOut := new(big.Int).Set(probe)
	for _, l := range legs {
		q, err := l.Code.Pool.Quote(probeOut, l.TokenIn)
		if err != nil || q.AmountOut.Sign() == 0 {
			return 0
		}
		probeOut = q.AmountOut
	}

	// impact = 1 - (amountOut / amountIn) / (probeOut / probe)
	realized := new(big.Rat).SetFrac(amountOut, amountIn)
	marginal := new(big.Rat).SetFrac(probeOut, probe)
	ratio, _ := new(big.Rat).Quo(realized, marginal).Float64()
	impact := 1 - ratio
	if impact < 0 {
		return 0
	}
	return impact
}
