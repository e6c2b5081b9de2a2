// Package pool defines the exchange venue abstraction consumed by the registry and the router.
package pool

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAmount is returned when an input amount is nil or not positive.
	ErrInvalidAmount = errors.New("amount must be non-nil and positive")
	// ErrTokenMismatch is returned when the input token is not one of the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInsufficientLiquidity is returned when the pool cannot fill the requested amount.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Quote is the result of pricing an input amount against a pool.
// Fee is denominated in the input token.
type Quote struct {
	AmountOut *big.Int
	Fee       *big.Int
}

// Pool is a venue where two tokens can be exchanged. Implementations are
// immutable snapshots: a refresh produces a new Pool value instead of
// mutating an existing one, so Quote is safe for concurrent use.
type Pool interface {
	Address() common.Address
	Tokens() (token0, token1 token.Token)
	// Quote prices amountIn of tokenIn; the output token is the other side of the pool.
	Quote(amountIn *big.Int, tokenIn token.Token) (Quote, error)
	// GasEstimate is the approximate gas consumed by one swap through the pool.
	GasEstimate() uint64
}

// ID is the identity of a pool across providers.
type ID struct {
	Provider string
	Address  common.Address
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%s", id.Provider, id.Address.Hex())
}

// Less orders IDs by provider name, then by address.
func (id ID) Less(other ID) bool {
	if id.Provider != other.Provider {
		return id.Provider < other.Provider
	}
	return bytes.Compare(id.Address[:], other.Address[:]) < 0
}

// Code binds a Pool to the metadata a settlement layer needs to encode a swap
// through it. Codes are shared read-only once published.
type Code struct {
	Pool     Pool
	Provider string
	// Params carries protocol-specific opaque parameters, e.g. the fee tier.
	Params map[string]string
}

// NewCode builds a Code, copying params.
func NewCode(provider string, p Pool, params map[string]string) Code {
	var cp map[string]string
	if len(params) > 0 {
		cp = make(map[string]string, len(params))
		for k, v := range params {
			cp[k] = v
		}
	}
	return Code{Pool: p, Provider: provider, Params: cp}
}

// ID identifies the pool within its provider.
func (c Code) ID() ID {
	return ID{Provider: c.Provider, Address: c.Pool.Address()}
}

// Pair returns the unordered pair the pool trades.
func (c Code) Pair() PairKey {
	t0, t1 := c.Pool.Tokens()
	return NewPairKey(t0, t1)
}

// Other returns the token opposite to t and whether t belongs to the pool.
func (c Code) Other(t token.Token) (token.Token, bool) {
	t0, t1 := c.Pool.Tokens()
	switch {
	case t.Equal(t0):
		return t1, true
	case t.Equal(t1):
		return t0, true
	}
	return token.Token{}, false
}

// PairKey is an unordered token pair: NewPairKey(a, b) == NewPairKey(b, a).
type PairKey struct {
	Token0 token.Key
	Token1 token.Key
}

// NewPairKey orders a and b by address so either argument order yields the
// same key.
func NewPairKey(a, b token.Token) PairKey {
	t0, t1 := token.Sort(a, b)
	return PairKey{Token0: t0.Key(), Token1: t1.Key()}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%d:%s/%s", k.Token0.ChainID, k.Token0.Address.Hex(), k.Token1.Address.Hex())
}
