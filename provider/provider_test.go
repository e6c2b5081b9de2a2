package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = token.MustNew(1, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH", "")
	usdc = token.MustNew(1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "USDC", "")
	dai  = token.MustNew(1, "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18, "DAI", "")
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type stubPool struct{ address common.Address }

func (p stubPool) Address() common.Address { return p.address }
func (p stubPool) Tokens() (token.Token, token.Token) { return usdc, weth }
func (p stubPool) GasEstimate() uint64 { return 0 }
func (p stubPool) Quote(*big.Int, token.Token) (pool.Quote, error) { return pool.Quote{}, nil }

func code(addr string) pool.Code {
	return pool.NewCode("test", stubPool{address: common.HexToAddress(addr)}, nil)
}

func TestSafely(t *testing.T) {
	assert.NoError(t, Safely(func() error { return nil }))

	sentinel := errors.New("boom")
	assert.ErrorIs(t, Safely(func() error { return sentinel }), sentinel)

	err := Safely(func() error { panic("kaboom") })
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestSnapshot(t *testing.T) {
	t.Run("empty snapshot", func(t *testing.T) {
		var s Snapshot
		assert.Nil(t, s.Pools())
		assert.False(t, s.CheckUpdated())
	})

	t.Run("publish raises flag once", func(t *testing.T) {
		var s Snapshot
		s.Publish([]pool.Code{code("0x01")})

		assert.True(t, s.CheckUpdated())
		assert.False(t, s.CheckUpdated(), "flag is edge-triggered")
		assert.Len(t, s.Pools(), 1)
	})

	t.Run("published list is isolated from the caller", func(t *testing.T) {
		var s Snapshot
		in := []pool.Code{code("0x01")}
		s.Publish(in)
		in[0] = code("0x02")

		out := s.Pools()
		assert.Equal(t, common.HexToAddress("0x01"), out[0].Pool.Address())
		out[0] = code("0x03")
		assert.Equal(t, common.HexToAddress("0x01"), s.Pools()[0].Pool.Address())
	})

	t.Run("PublishIf respects cancellation", func(t *testing.T) {
		var s Snapshot
		ctx, cancel := context.WithCancel(context.Background())
		assert.True(t, s.PublishIf(ctx, []pool.Code{code("0x01")}))
		cancel()
		assert.False(t, s.PublishIf(ctx, nil))
		assert.Len(t, s.Pools(), 1)
	})

	t.Run("reset raises the flag only when something was dropped", func(t *testing.T) {
		var s Snapshot
		s.Reset()
		assert.False(t, s.CheckUpdated())

		s.Publish([]pool.Code{code("0x01")})
		s.CheckUpdated()
		s.Reset()
		assert.True(t, s.CheckUpdated())
		assert.Nil(t, s.Pools())
	})
}

func TestRefresher(t *testing.T) {
	key := pool.NewPairKey(weth, usdc)

	t.Run("runs on interval until stopped", func(t *testing.T) {
		var calls atomic.Int32
		r := &Refresher{Name: "test", Interval: 5 * time.Millisecond, Logger: newTestLogger()}

		assert.True(t, r.Start(context.Background(), key, func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}))
		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

		r.Stop()
		assert.False(t, r.Running())
		after := calls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, after, calls.Load(), "no cycle may run after Stop returns")
	})

	t.Run("start is idempotent for the same pair", func(t *testing.T) {
		r := &Refresher{Interval: time.Hour}
		defer r.Stop()

		assert.True(t, r.Start(context.Background(), key, func(context.Context) error { return nil }))
		assert.False(t, r.Start(context.Background(), key, func(context.Context) error { return nil }))
		assert.True(t, r.Start(context.Background(), pool.NewPairKey(weth, dai), func(context.Context) error { return nil }),
			"a different pair restarts the loop")
	})

	t.Run("stop is safe when never started and when repeated", func(t *testing.T) {
		r := &Refresher{}
		r.Stop()
		r.Stop()
		assert.False(t, r.Running())
	})

	t.Run("stop waits for the in-flight cycle", func(t *testing.T) {
		entered := make(chan struct{})
		var finished atomic.Bool
		r := &Refresher{Interval: time.Millisecond, Logger: newTestLogger()}
		var once sync.Once
		r.Start(context.Background(), key, func(ctx context.Context) error {
			once.Do(func() { close(entered) })
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		})

		<-entered
		r.Stop()
		assert.True(t, finished.Load())
	})

	t.Run("failures and panics do not kill the loop", func(t *testing.T) {
		var calls atomic.Int32
		r := &Refresher{Interval: 2 * time.Millisecond, Logger: newTestLogger()}
		defer r.Stop()

		r.Start(context.Background(), key, func(context.Context) error {
			n := calls.Add(1)
			if n == 1 {
				panic("first cycle panics")
			}
			return errors.New("rpc down")
		})
		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	})

	t.Run("parent context cancellation ends the loop", func(t *testing.T) {
		var calls atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		r := &Refresher{Interval: 2 * time.Millisecond}
		r.Start(ctx, key, func(context.Context) error { calls.Add(1); return nil })
		require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)

		cancel()
		r.Stop()
		after := calls.Load()
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, after, calls.Load())
	})
}

type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func (s *fakeSubscription) Unsubscribe() { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSubscription) Err() <-chan error { return s.errCh }

type fakeHeads struct {
	mu  sync.Mutex
	ch  chan<- *types.Header
	sub *fakeSubscription
	err error
}

func (f *fakeHeads) SubscribeNewHead(_ context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.ch = ch
	f.sub = &fakeSubscription{errCh: make(chan error, 1)}
	return f.sub, nil
}

func (f *fakeHeads) push(n int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return false
	}
	f.ch <- &types.Header{Number: big.NewInt(n)}
	return true
}

func TestRefresherHeads(t *testing.T) {
	key := pool.NewPairKey(weth, usdc)

	t.Run("refreshes on every new head", func(t *testing.T) {
		heads := &fakeHeads{}
		var calls atomic.Int32
		r := &Refresher{Interval: time.Hour, Heads: heads, Logger: newTestLogger()}
		defer r.Stop()

		r.Start(context.Background(), key, func(context.Context) error { calls.Add(1); return nil })
		require.Eventually(t, func() bool { return heads.push(1) }, time.Second, time.Millisecond)
		heads.push(2)

		require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	})

	t.Run("falls back to interval when subscription fails", func(t *testing.T) {
		heads := &fakeHeads{err: errors.New("http endpoint, no subscriptions")}
		var calls atomic.Int32
		r := &Refresher{Interval: 2 * time.Millisecond, Heads: heads, Logger: newTestLogger()}
		defer r.Stop()

		r.Start(context.Background(), key, func(context.Context) error { calls.Add(1); return nil })
		require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	})
}

func TestCandidatePairs(t *testing.T) {
	polygonUSDC := token.MustNew(137, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", 6, "USDC", "")

	t.Run("pair only", func(t *testing.T) {
		pairs := CandidatePairs(weth, usdc, nil)
		require.Len(t, pairs, 1)
		assert.Equal(t, [2]token.Token{usdc, weth}, pairs[0], "pairs are sorted as (token0, token1)")
	})

	t.Run("bases are deduplicated and other networks skipped", func(t *testing.T) {
		pairs := CandidatePairs(weth, usdc, []token.Token{weth, dai, polygonUSDC, dai})
		// {weth, usdc, dai} -> 3 pairs
		assert.Len(t, pairs, 3)
		for _, p := range pairs {
			assert.True(t, p[0].Less(p[1]))
		}
	})
}

func TestSortCodes(t *testing.T) {
	codes := []pool.Code{code("0x03"), code("0x01"), code("0x02")}
	SortCodes(codes)
	assert.Equal(t, common.HexToAddress("0x01"), codes[0].Pool.Address())
	assert.Equal(t, common.HexToAddress("0x03"), codes[2].Pool.Address())
}
