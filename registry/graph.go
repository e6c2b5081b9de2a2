package registry

import (
	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
)

// Graph is the token/pool adjacency derived from a snapshot. Tokens are
// vertices; every pair of tokens sharing at least one pool is connected by two
// directed edges, each listing the pools that trade in that direction.
//
// Data lives in flat slices for cache-friendly traversal. A Graph is
// immutable and shared by every reader of its snapshot.
type Graph struct {
	Tokens      []token.Token
	Codes       []pool.Code
	Adjacency   [][]int // token index -> edge indices
	EdgeTargets []int   // edge index -> target token index
	EdgePools   [][]int // edge index -> code indices

	tokenToIndex map[token.Key]int
	edgeIndex    map[[2]int]int
}

func buildGraph(codes []pool.Code) *Graph {
	g := &Graph{
		Codes:        codes,
		tokenToIndex: make(map[token.Key]int),
		edgeIndex:    make(map[[2]int]int),
	}
	for i, c := range codes {
		t0, t1 := c.Pool.Tokens()
		from, to := g.vertex(t0), g.vertex(t1)
		g.addEdge(from, to, i)
		g.addEdge(to, from, i)
	}
	g.edgeIndex = nil
	return g
}

func (g *Graph) vertex(t token.Token) int {
	if i, ok := g.tokenToIndex[t.Key()]; ok {
		return i
	}
	i := len(g.Tokens)
	g.tokenToIndex[t.Key()] = i
	g.Tokens = append(g.Tokens, t)
	g.Adjacency = append(g.Adjacency, nil)
	return i
}

func (g *Graph) addEdge(from, to, codeIndex int) {
	e, ok := g.edgeIndex[[2]int{from, to}]
	if !ok {
		e = len(g.EdgeTargets)
		g.edgeIndex[[2]int{from, to}] = e
		g.EdgeTargets = append(g.EdgeTargets, to)
		g.EdgePools = append(g.EdgePools, nil)
		g.Adjacency[from] = append(g.Adjacency[from], e)
	}
	g.EdgePools[e] = append(g.EdgePools[e], codeIndex)
}

// TokenIndex returns the vertex index of t.
func (g *Graph) TokenIndex(t token.Token) (int, bool) {
	i, ok := g.tokenToIndex[t.Key()]
	return i, ok
}

func (g *Graph) NumTokens() int { return len(g.Tokens) }
