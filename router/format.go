package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-router-go/route"
	"github.com/defistate/defistate-router-go/token"
)

// FormatRoute renders r for humans. Amounts are scaled by token decimals and
// the minimum output applies slippageBps.
func FormatRoute(r *route.Route, tokenIn, tokenOut token.Token, slippageBps uint32) string {
	if r == nil || r.AmountOut == nil {
		return fmt.Sprintf("no route %s -> %s", tokenIn, tokenOut)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s %s (min %s, impact %.2f%%, gas %d",
		humanAmount(r.AmountIn, tokenIn.Decimals), tokenIn,
		humanAmount(r.AmountOut, tokenOut.Decimals), tokenOut,
		humanAmount(r.AmountOutMin(slippageBps), tokenOut.Decimals),
		r.PriceImpact*100, r.GasSpent)
	if r.GasCost != nil {
		fmt.Fprintf(&b, ", cost %s gwei", humanAmount(r.GasCost, 9))
	}
	b.WriteString(")")

	for i, l := range r.Legs {
		fmt.Fprintf(&b, "\n  %d. %s -> %s via %s %s (%.0f%%)",
			i+1, l.TokenIn, l.TokenOut, l.Code.Provider, l.Code.Pool.Address().Hex(), l.Share*100)
	}
	return b.String()
}

func humanAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Text('f', 4)
}
