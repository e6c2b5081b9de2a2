package token

import "github.com/ethereum/go-ethereum/common"

// Index provides fast lookup of known tokens on a single network.
type Index struct {
	chainID   uint64
	byAddress map[common.Address]int
	all       []Token
}

// NewIndex builds an index over tokens. Tokens from other networks are ignored;
// for duplicate addresses the last one wins.
func NewIndex(chainID uint64, tokens ...Token) *Index {
	idx := &Index{
		chainID:   chainID,
		byAddress: make(map[common.Address]int, len(tokens)),
	}
	for _, t := range tokens {
		idx.Add(t)
	}
	return idx
}

// Add inserts or replaces t. It reports false if t belongs to another network.
func (i *Index) Add(t Token) bool {
	if t.ChainID != i.chainID {
		return false
	}
	if pos, ok := i.byAddress[t.Address]; ok {
		i.all[pos] = t
		return true
	}
	i.byAddress[t.Address] = len(i.all)
	i.all = append(i.all, t)
	return true
}

// GetByAddress retrieves a token by its contract address.
func (i *Index) GetByAddress(address common.Address) (Token, bool) {
	pos, ok := i.byAddress[address]
	if !ok {
		return Token{}, false
	}
	return i.all[pos], true
}

// All returns a copy of the indexed tokens in insertion order.
func (i *Index) All() []Token {
	out := make([]Token, len(i.all))
	copy(out, i.all)
	return out
}

func (i *Index) Len() int { return len(i.all) }
