package provider

import (
	"sort"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
	mapset "github.com/deckarep/golang-set/v2"
)

// CandidatePairs enumerates every distinct pair among tokenA, tokenB and the
// base tokens on tokenA's network, each ordered as (token0, token1).
func CandidatePairs(tokenA, tokenB token.Token, bases []token.Token) [][2]token.Token {
	seen := mapset.NewThreadUnsafeSet[token.Key]()
	var tokens []token.Token
	for _, t := range append([]token.Token{tokenA, tokenB}, bases...) {
		if t.ChainID != tokenA.ChainID || !seen.Add(t.Key()) {
			continue
		}
		tokens = append(tokens, t)
	}

	pairs := make([][2]token.Token, 0, len(tokens)*(len(tokens)-1)/2)
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			t0, t1 := token.Sort(tokens[i], tokens[j])
			pairs = append(pairs, [2]token.Token{t0, t1})
		}
	}
	return pairs
}

// SortCodes orders codes by pool identity so published lists are deterministic.
func SortCodes(codes []pool.Code) {
	sort.Slice(codes, func(i, j int) bool { return codes[i].ID().Less(codes[j].ID()) })
}
