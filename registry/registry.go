package registry

import (
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-router-go/pool"
)

// Registry is the writer side of the pool registry.
type Registry struct {
	mu        sync.Mutex
	providers map[string][]pool.Code
	version   uint64
	view      atomic.Pointer[Snapshot]
}

// New returns an empty Registry at version zero.
func New() *Registry {
	r := &Registry{providers: make(map[string][]pool.Code)}
	r.view.Store(newSnapshot(0, nil))
	return r
}

// Snapshot returns the current view without locking.
func (r *Registry) Snapshot() *Snapshot {
	return r.view.Load()
}

// Replace swaps all entries of one provider for codes.
func (r *Registry) Replace(provider string, codes []pool.Code) {
	r.ReplaceMany(map[string][]pool.Code{provider: codes})
}

// ReplaceMany swaps the entries of several providers and publishes once.
// Entries whose Code.Provider differs from the key are re-attributed to it,
// and duplicate pool addresses within a provider keep the last occurrence.
func (r *Registry) ReplaceMany(updates map[string][]pool.Code) {
	if len(updates) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, codes := range updates {
		deduped := dedupe(name, codes)
		if len(deduped) == 0 {
			delete(r.providers, name)
			continue
		}
		r.providers[name] = deduped
	}
	r.publishLocked()
}

// Remove drops every entry of a provider.
func (r *Registry) Remove(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[provider]; !ok {
		return
	}
	delete(r.providers, provider)
	r.publishLocked()
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		return
	}
	r.providers = make(map[string][]pool.Code)
	r.publishLocked()
}

// publishLocked MUST be called with r.mu held.
func (r *Registry) publishLocked() {
	r.version++
	r.view.Store(newSnapshot(r.version, r.providers))
}

func dedupe(provider string, codes []pool.Code) []pool.Code {
	index := make(map[pool.ID]int, len(codes))
	out := make([]pool.Code, 0, len(codes))
	for _, c := range codes {
		if c.Pool == nil {
			continue
		}
		c.Provider = provider
		id := c.ID()
		if i, ok := index[id]; ok {
			out[i] = c
			continue
		}
		index[id] = len(out)
		out = append(out, c)
	}
	return out
}
