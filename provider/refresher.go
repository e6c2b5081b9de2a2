package provider

import (
	"context"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultRefreshInterval = 12 * time.Second
	headBufferSize         = 8
)

// HeadSource notifies about new blocks. *ethclient.Client satisfies it.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// RefreshFunc performs one refresh cycle.
type RefreshFunc func(ctx context.Context) error

// Refresher runs a RefreshFunc on a fixed interval and, when Heads is set,
// on every new block. One pair at a time.
type Refresher struct {
	Name     string
	Interval time.Duration
	Heads    HeadSource
	Logger   Logger

	mu      sync.Mutex
	key     pool.PairKey
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Start launches the background loop for key. It is a no-op if the loop is
// already running for key; a different key restarts the loop.
// It reports whether a new loop was launched.
func (r *Refresher) Start(ctx context.Context, key pool.PairKey, fn RefreshFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		if r.key == key {
			return false
		}
		r.stopLocked()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.key = key
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx, r.done, fn)
	return true
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) stopLocked() {
	if !r.running {
		return
	}
	r.cancel()
	<-r.done
	r.running = false
	r.cancel = nil
	r.done = nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}, fn RefreshFunc) {
	defer close(done)

	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		heads  chan *types.Header
		subErr <-chan error
	)
	if r.Heads != nil {
		heads = make(chan *types.Header, headBufferSize)
		sub, err := r.Heads.SubscribeNewHead(ctx, heads)
		if err != nil {
			r.log().Warn("Head subscription failed, refreshing on interval only", "provider", r.Name, "error", err)
			heads = nil
		} else {
			defer sub.Unsubscribe()
			subErr = sub.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-subErr:
			r.log().Warn("Head subscription dropped, refreshing on interval only", "provider", r.Name, "error", err)
			heads, subErr = nil, nil
			continue
		case h := <-heads:
			if h != nil {
				r.log().Debug("New head, refreshing", "provider", r.Name, "block", h.Number)
			}
		case <-ticker.C:
		}

		if ctx.Err() != nil {
			return
		}
		if err := Safely(func() error { return fn(ctx) }); err != nil && ctx.Err() == nil {
			r.log().Warn("Pool refresh failed", "provider", r.Name, "error", err)
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (r *Refresher) log() Logger {
	if r.Logger == nil {
		return nopLogger{}
	}
	return r.Logger
}
