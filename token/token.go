// Package token defines the fungible asset identity shared by every other package.
package token

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a safe, structured representation of a token's data for external use.
// It is immutable once constructed; copy it freely.
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}

// Key is the identity of a token. Two tokens are equal iff their keys are equal.
type Key struct {
	ChainID uint64
	Address common.Address
}

// New builds a Token from a hex address. The address is normalized, so
// checksummed, lower-case and upper-case inputs produce the same Key.
func New(chainID uint64, address string, decimals uint8, symbol, name string) (Token, error) {
	if !common.IsHexAddress(address) {
		return Token{}, fmt.Errorf("token: invalid address %q", address)
	}
	return Token{
		ChainID:  chainID,
		Address:  common.HexToAddress(address),
		Decimals: decimals,
		Symbol:   symbol,
		Name:     name,
	}, nil
}

// MustNew is like New but panics on an invalid address. Intended for package-level catalogs.
func MustNew(chainID uint64, address string, decimals uint8, symbol, name string) Token {
	t, err := New(chainID, address, decimals, symbol, name)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Token) Key() Key {
	return Key{ChainID: t.ChainID, Address: t.Address}
}

// Equal reports whether both tokens live on the same network at the same address.
func (t Token) Equal(other Token) bool {
	return t.Key() == other.Key()
}

// Less orders tokens the way on-chain factories do: by network, then by address bytes.
func (t Token) Less(other Token) bool {
	if t.ChainID != other.ChainID {
		return t.ChainID < other.ChainID
	}
	return bytes.Compare(t.Address[:], other.Address[:]) < 0
}

// Sort returns the pair ordered as (token0, token1).
func Sort(a, b Token) (Token, Token) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return strings.ToLower(t.Address.Hex())
}
