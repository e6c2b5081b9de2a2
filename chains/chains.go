// Package chains is the catalog of networks the router can operate on.
package chains

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-router-go/token"
)

const (
	Mainnet uint64 = 1
	Polygon uint64 = 137
)

// ErrUnsupportedNetwork is returned for any chain ID missing from the catalog.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Network describes a supported chain.
type Network struct {
	ID            uint64
	Name          string
	WrappedNative token.Token
	// BaseTokens are the liquid intermediaries providers pair against
	// when discovering pools for multi-hop routes.
	BaseTokens []token.Token
}

var networks = map[uint64]Network{
	Mainnet: {
		ID:            Mainnet,
		Name:          "ethereum",
		WrappedNative: token.MustNew(Mainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH", "Wrapped Ether"),
		BaseTokens: []token.Token{
			token.MustNew(Mainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH", "Wrapped Ether"),
			token.MustNew(Mainnet, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "USDC", "USD Coin"),
			token.MustNew(Mainnet, "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6, "USDT", "Tether USD"),
			token.MustNew(Mainnet, "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18, "DAI", "Dai Stablecoin"),
		},
	},
	Polygon: {
		ID:            Polygon,
		Name:          "polygon",
		WrappedNative: token.MustNew(Polygon, "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", 18, "WMATIC", "Wrapped Matic"),
		BaseTokens: []token.Token{
			token.MustNew(Polygon, "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", 18, "WMATIC", "Wrapped Matic"),
			token.MustNew(Polygon, "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", 18, "WETH", "Wrapped Ether"),
			token.MustNew(Polygon, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", 6, "USDC", "USD Coin (PoS)"),
			token.MustNew(Polygon, "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", 6, "USDT", "Tether USD (PoS)"),
			token.MustNew(Polygon, "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", 18, "DAI", "Dai Stablecoin (PoS)"),
		},
	},
}

// Lookup returns the network for chainID or ErrUnsupportedNetwork.
func Lookup(chainID uint64) (Network, error) {
	n, ok := networks[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain id %d", ErrUnsupportedNetwork, chainID)
	}
	n.BaseTokens = append([]token.Token(nil), n.BaseTokens...)
	return n, nil
}

// Tokens indexes the tokens the network knows: its wrapped native token and
// base tokens.
func (n Network) Tokens() *token.Index {
	return token.NewIndex(n.ID, append([]token.Token{n.WrappedNative}, n.BaseTokens...)...)
}

func IsSupported(chainID uint64) bool {
	_, ok := networks[chainID]
	return ok
}

// Supported lists the supported chain IDs in ascending order.
func Supported() []uint64 {
	ids := make([]uint64, 0, len(networks))
	for id := range networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ValidatePair fails fast when the pair cannot be routed: unknown network,
// tokens on different networks, or the same token on both sides.
func ValidatePair(a, b token.Token) error {
	if _, err := Lookup(a.ChainID); err != nil {
		return err
	}
	if a.ChainID != b.ChainID {
		return fmt.Errorf("%w: tokens on different chains (%d, %d)", ErrUnsupportedNetwork, a.ChainID, b.ChainID)
	}
	if a.Equal(b) {
		return fmt.Errorf("chains: token pair must consist of two distinct tokens, got %s twice", a)
	}
	return nil
}
