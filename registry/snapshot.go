// Package registry holds the merged view of pools across providers.
//
// A Registry has a single writer and any number of readers. Every write
// publishes a new immutable Snapshot through an atomic pointer, so readers
// never take a lock and never observe a partially applied merge.
package registry

import (
	"sort"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
)

// Snapshot is a point-in-time, read-only view of the registry.
type Snapshot struct {
	version   uint64
	pairs     map[pool.PairKey][]pool.Code
	providers map[string][]pool.Code
	all       []pool.Code
	graph     *Graph
}

func newSnapshot(version uint64, providers map[string][]pool.Code) *Snapshot {
	s := &Snapshot{
		version:   version,
		pairs:     make(map[pool.PairKey][]pool.Code),
		providers: make(map[string][]pool.Code, len(providers)),
	}
	for name, codes := range providers {
		s.providers[name] = codes
		for _, c := range codes {
			k := c.Pair()
			s.pairs[k] = append(s.pairs[k], c)
			s.all = append(s.all, c)
		}
	}
	sort.Slice(s.all, func(i, j int) bool { return s.all[i].ID().Less(s.all[j].ID()) })
	for _, codes := range s.pairs {
		sort.Slice(codes, func(i, j int) bool { return codes[i].ID().Less(codes[j].ID()) })
	}
	s.graph = buildGraph(s.all)
	return s
}

// Version increases by one with every published change.
func (s *Snapshot) Version() uint64 { return s.version }

// Len is the number of pools across all providers.
func (s *Snapshot) Len() int { return len(s.all) }

// Pools returns the pools trading a and b, in either direction.
func (s *Snapshot) Pools(a, b token.Token) []pool.Code {
	return clone(s.pairs[pool.NewPairKey(a, b)])
}

// All returns every pool ordered by identity.
func (s *Snapshot) All() []pool.Code { return clone(s.all) }

// ProviderPools returns the entries contributed by one provider.
func (s *Snapshot) ProviderPools(name string) []pool.Code {
	return clone(s.providers[name])
}

// Providers lists providers with at least one entry, sorted by name.
func (s *Snapshot) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name, codes := range s.providers {
		if len(codes) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PoolCodeMap indexes every pool by identity, for settlement encoding.
func (s *Snapshot) PoolCodeMap() map[pool.ID]pool.Code {
	m := make(map[pool.ID]pool.Code, len(s.all))
	for _, c := range s.all {
		m[c.ID()] = c
	}
	return m
}

// Graph returns the adjacency view used by route search. Callers must not modify it.
func (s *Snapshot) Graph() *Graph { return s.graph }

func clone(codes []pool.Code) []pool.Code {
	if len(codes) == 0 {
		return nil
	}
	out := make([]pool.Code, len(codes))
	copy(out, codes)
	return out
}
