// Package fetcher drives a set of pool providers for one token pair and merges
// what they publish into a single pool registry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/provider"
	"github.com/defistate/defistate-router-go/registry"
	"github.com/defistate/defistate-router-go/token"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultDiscoveryAttempts = 3
	DefaultRetryDelay        = time.Second
	DefaultMaxRetryDelay     = 30 * time.Second
)

// ErrUnsupportedPair is returned by StartFetching for a pair that cannot be served.
var ErrUnsupportedPair = errors.New("fetcher: unsupported token pair")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config wires the providers the Fetcher drives and its collaborators.
// DiscoveryAttempts, RetryDelay and MaxRetryDelay fall back to the package
// defaults when zero.
type Config struct {
	Providers []provider.Provider
	// ChainID restricts sessions to one network. Zero accepts any supported network.
	ChainID           uint64
	DiscoveryAttempts int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	Registry          prometheus.Registerer
	Logger            Logger
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return errors.New("config: at least one Provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p == nil {
			return errors.New("config: Providers must not contain nil")
		}
		if seen[p.Name()] {
			return fmt.Errorf("config: duplicate provider name %q", p.Name())
		}
		seen[p.Name()] = true
	}
	if c.ChainID != 0 && !chains.IsSupported(c.ChainID) {
		return fmt.Errorf("config: %w: chain id %d", chains.ErrUnsupportedNetwork, c.ChainID)
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DiscoveryAttempts <= 0 {
		c.DiscoveryAttempts = DefaultDiscoveryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = max(DefaultMaxRetryDelay, c.RetryDelay)
	}
}

// session is the lifecycle of fetching one pair.
type session struct {
	tokenA, tokenB token.Token
	key            pool.PairKey
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// ended reports whether the session's context is done, either through
// StopFetching or because the caller's context was cancelled.
func (s *session) ended() bool {
	return s.ctx.Err() != nil
}

// Fetcher owns the provider lifecycle and the merged registry. At most one
// session is active at a time.
type Fetcher struct {
	cfg      Config
	logger   Logger
	metrics  *Metrics
	registry *registry.Registry

	// lifecycle serializes StartFetching and StopFetching. It is held while
	// waiting on provider goroutines, mu never is.
	lifecycle sync.Mutex

	mu      sync.Mutex
	session *session
}

// New validates cfg, applies defaults and returns an idle Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.Providers = append([]provider.Provider(nil), cfg.Providers...)

	return &Fetcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry),
		registry: registry.New(),
	}, nil
}

// StartFetching begins discovery and continuous refresh of the pair on every
// provider. It returns once the work is scheduled. Calling it again for the
// same pair is a no-op; a different pair replaces the running session.
//
// The session lives until StopFetching is called or ctx is cancelled. Once ctx
// is cancelled, a later call for the same pair starts a fresh session.
func (f *Fetcher) StartFetching(ctx context.Context, tokenA, tokenB token.Token) error {
	if err := chains.ValidatePair(tokenA, tokenB); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedPair, err)
	}
	if f.cfg.ChainID != 0 && tokenA.ChainID != f.cfg.ChainID {
		return fmt.Errorf("%w: %w: fetcher serves chain %d, pair is on chain %d",
			ErrUnsupportedPair, chains.ErrUnsupportedNetwork, f.cfg.ChainID, tokenA.ChainID)
	}

	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	key := pool.NewPairKey(tokenA, tokenB)
	f.mu.Lock()
	old := f.session
	if old != nil && old.key == key && !old.ended() {
		f.mu.Unlock()
		return nil
	}
	f.detachLocked()
	f.mu.Unlock()

	if old != nil {
		if old.ended() {
			f.logger.Warn("Replacing ended fetch session", "pair", old.key.String())
		} else {
			f.logger.Info("Switching fetch session", "from", old.key.String(), "to", key.String())
		}
		f.shutdown(old)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{tokenA: tokenA, tokenB: tokenB, key: key, ctx: ctx, cancel: cancel}
	for _, p := range f.cfg.Providers {
		s.wg.Add(1)
		go func(p provider.Provider) {
			defer s.wg.Done()
			f.runProvider(ctx, p, tokenA, tokenB)
		}(p)
	}

	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	f.logger.Info("Fetch session started", "pair", key.String(), "providers", len(f.cfg.Providers))
	return nil
}

// runProvider discovers pools with exponential backoff between attempts and
// then hands the provider over to its own refresh loop.
func (f *Fetcher) runProvider(ctx context.Context, p provider.Provider, tokenA, tokenB token.Token) {
	name := p.Name()
	delay := f.cfg.RetryDelay

	for attempt := 1; ; attempt++ {
		timer := prometheus.NewTimer(f.metrics.DiscoveryDuration.WithLabelValues(name))
		err := provider.Safely(func() error {
			_, err := p.DiscoverPools(ctx, tokenA, tokenB)
			return err
		})
		timer.ObserveDuration()

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			break
		}

		f.metrics.DiscoveryFailures.WithLabelValues(name).Inc()
		if attempt >= f.cfg.DiscoveryAttempts {
			f.logger.Error("Provider discovery failed, provider contributes no pools",
				"provider", name, "attempts", attempt, "error", err)
			return
		}
		f.logger.Warn("Provider discovery failed, retrying",
			"provider", name, "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, f.cfg.MaxRetryDelay)
	}

	err := provider.Safely(func() error {
		p.StartContinuousRefresh(ctx, tokenA, tokenB)
		return nil
	})
	if err != nil {
		f.logger.Error("Provider refresh failed to start", "provider", name, "error", err)
	}
}

// CurrentPoolRegistry merges the pools of every provider that published since
// the previous call and returns the resulting snapshot. Providers without
// updates keep their previous entries.
func (f *Fetcher) CurrentPoolRegistry() *registry.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session == nil {
		return f.registry.Snapshot()
	}

	updates := make(map[string][]pool.Code)
	for _, p := range f.cfg.Providers {
		name := p.Name()
		var (
			updated bool
			codes   []pool.Code
		)
		err := provider.Safely(func() error {
			if updated = p.HasUpdatedSinceLastCheck(); updated {
				codes = p.CurrentPools()
			}
			return nil
		})
		if err != nil {
			f.logger.Warn("Provider merge failed, keeping previous pools", "provider", name, "error", err)
			continue
		}
		if updated {
			updates[name] = relevant(codes, f.session.tokenA.ChainID)
			f.metrics.Merges.WithLabelValues(name).Inc()
		}
	}

	if len(updates) > 0 {
		f.registry.ReplaceMany(updates)
		snap := f.registry.Snapshot()
		f.metrics.RegistryPools.Set(float64(snap.Len()))
		f.logger.Debug("Merged provider updates", "providers", len(updates), "pools", snap.Len(), "version", snap.Version())
		return snap
	}
	return f.registry.Snapshot()
}

// relevant drops codes on other networks.
func relevant(codes []pool.Code, chainID uint64) []pool.Code {
	out := codes[:0:0]
	for _, c := range codes {
		if c.Pool == nil {
			continue
		}
		t0, _ := c.Pool.Tokens()
		if t0.ChainID == chainID {
			out = append(out, c)
		}
	}
	return out
}

// StopFetching ends the session: in-flight discovery is cancelled, every
// provider's refresh is stopped and the registry is cleared. It is safe to
// call repeatedly.
//
// The registry is emptied before waiting on the providers, so
// CurrentPoolRegistry never blocks on a provider that is slow to stop.
func (f *Fetcher) StopFetching() {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	f.mu.Lock()
	s := f.session
	f.detachLocked()
	f.mu.Unlock()

	if s != nil {
		f.shutdown(s)
	}
}

// detachLocked clears the current session and the registry. MUST be called
// with f.mu held.
func (f *Fetcher) detachLocked() {
	if f.session == nil {
		return
	}
	f.session = nil
	f.registry.Reset()
	f.metrics.RegistryPools.Set(0)
}

// shutdown cancels a detached session and waits for its providers. MUST be
// called with f.lifecycle held and f.mu released.
func (f *Fetcher) shutdown(s *session) {
	s.cancel()
	s.wg.Wait()

	for _, p := range f.cfg.Providers {
		err := provider.Safely(func() error {
			p.StopContinuousRefresh()
			// Drain the flag so pools of this session are never merged into the next one.
			p.HasUpdatedSinceLastCheck()
			return nil
		})
		if err != nil {
			f.logger.Warn("Provider stop failed", "provider", p.Name(), "error", err)
		}
	}
	f.logger.Info("Fetch session stopped", "pair", s.key.String())
}

// Session reports the pair being fetched. A session whose context was
// cancelled by the caller is not reported.
func (f *Fetcher) Session() (tokenA, tokenB token.Token, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || f.session.ended() {
		return token.Token{}, token.Token{}, false
	}
	return f.session.tokenA, f.session.tokenB, true
}
