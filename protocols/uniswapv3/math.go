package uniswapv3

import "github.com/holiman/uint256"

const resolution = 96

var (
	q96        = new(uint256.Int).Lsh(uint256.NewInt(1), resolution)
	maxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	feeDenom   = uint256.NewInt(feeDenominator)
)

func feeAmount(amount *uint256.Int, fee uint32) *uint256.Int {
	f, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(fee)), feeDenom)
	return f
}

func mulDivRoundingUp(x, y, d *uint256.Int) (*uint256.Int, bool) {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, true
	}
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		if z.Eq(new(uint256.Int).SetAllOne()) {
			return nil, true
		}
		z.AddUint64(z, 1)
	}
	return z, false
}

// amount1Out sells amountIn of token0: the price moves down to
// L * sqrtP / (L + amountIn * sqrtP), rounding up, and token1 is released.
func amount1Out(sqrtPriceX96, liquidity, amountIn *uint256.Int) (*uint256.Int, bool) {
	if liquidity.IsZero() || sqrtPriceX96.IsZero() || amountIn.IsZero() {
		return new(uint256.Int), false
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)

	var next *uint256.Int
	product, overflow := new(uint256.Int).MulOverflow(amountIn, sqrtPriceX96)
	denominator, addOverflow := new(uint256.Int).AddOverflow(numerator1, product)
	if !overflow && !addOverflow {
		var roundOverflow bool
		next, roundOverflow = mulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
		if roundOverflow {
			return nil, true
		}
	} else {
		// numerator1 / (numerator1 / sqrtP + amountIn), rounding up
		q := new(uint256.Int).Div(numerator1, sqrtPriceX96)
		q, overflow = q.AddOverflow(q, amountIn)
		if overflow {
			return nil, true
		}
		next = divRoundingUp(numerator1, q)
	}

	diff := new(uint256.Int).Sub(sqrtPriceX96, next)
	out, overflow := new(uint256.Int).MulDivOverflow(liquidity, diff, q96)
	return out, overflow
}

// amount0Out sells amountIn of token1: the price moves up by amountIn / L and
// token0 is released.
func amount0Out(sqrtPriceX96, liquidity, amountIn *uint256.Int) (*uint256.Int, bool) {
	if liquidity.IsZero() || sqrtPriceX96.IsZero() || amountIn.IsZero() {
		return new(uint256.Int), false
	}
	var quotient *uint256.Int
	if amountIn.Cmp(maxUint160) <= 0 {
		quotient = new(uint256.Int).Lsh(amountIn, resolution)
		quotient.Div(quotient, liquidity)
	} else {
		var overflow bool
		quotient, overflow = new(uint256.Int).MulDivOverflow(amountIn, q96, liquidity)
		if overflow {
			return nil, true
		}
	}
	next, overflow := new(uint256.Int).AddOverflow(sqrtPriceX96, quotient)
	if overflow || next.Cmp(maxUint160) > 0 {
		return nil, true
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)
	diff := new(uint256.Int).Sub(next, sqrtPriceX96)
	out, overflow := new(uint256.Int).MulDivOverflow(numerator1, diff, next)
	if overflow {
		return nil, true
	}
	return out.Div(out, sqrtPriceX96), false
}

func divRoundingUp(x, y *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Div(x, y)
	if !new(uint256.Int).Mod(x, y).IsZero() {
		z.AddUint64(z, 1)
	}
	return z
}
