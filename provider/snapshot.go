package provider

import (
	"context"
	"sync/atomic"

	"github.com/defistate/defistate-router-go/pool"
)

// Snapshot holds a provider's current pool list. Lists are replaced wholesale,
// never mutated in place, so readers never observe a partially written list.
type Snapshot struct {
	pools   atomic.Pointer[[]pool.Code]
	updated atomic.Bool
}

// Publish replaces the current list and raises the updated flag.
func (s *Snapshot) Publish(codes []pool.Code) {
	cp := make([]pool.Code, len(codes))
	copy(cp, codes)
	s.pools.Store(&cp)
	s.updated.Store(true)
}

// PublishIf publishes only while ctx is live. It reports whether the list was published.
func (s *Snapshot) PublishIf(ctx context.Context, codes []pool.Code) bool {
	if ctx.Err() != nil {
		return false
	}
	s.Publish(codes)
	return true
}

// Pools returns a copy of the current list.
func (s *Snapshot) Pools() []pool.Code {
	p := s.pools.Load()
	if p == nil {
		return nil
	}
	out := make([]pool.Code, len(*p))
	copy(out, *p)
	return out
}

// CheckUpdated reports and clears the updated flag.
func (s *Snapshot) CheckUpdated() bool {
	return s.updated.Swap(false)
}

// Reset drops the list. The flag is raised so the owner merges the removal.
func (s *Snapshot) Reset() {
	if s.pools.Swap(nil) != nil {
		s.updated.Store(true)
	}
}
