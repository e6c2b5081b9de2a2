package router_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/fetcher"
	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/provider"
	"github.com/defistate/defistate-router-go/route"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = token.MustNew(chains.Mainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH", "Wrapped Ether")
	usdc = token.MustNew(chains.Mainnet, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "USDC", "USD Coin")
)

// staticProvider publishes a fixed pool set on discovery, or fails every time.
type staticProvider struct {
	name  string
	codes []pool.Code
	err   error

	snapshot provider.Snapshot

	mu       sync.Mutex
	attempts int
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) DiscoverPools(ctx context.Context, _, _ token.Token) ([]pool.Code, error) {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.snapshot.PublishIf(ctx, p.codes)
	return p.codes, nil
}

func (p *staticProvider) StartContinuousRefresh(context.Context, token.Token, token.Token) {}
func (p *staticProvider) HasUpdatedSinceLastCheck() bool { return p.snapshot.CheckUpdated() }
func (p *staticProvider) CurrentPools() []pool.Code { return p.snapshot.Pools() }
func (p *staticProvider) StopContinuousRefresh() {}

func (p *staticProvider) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func pair(t *testing.T, provider, address string, reserveWETH, reserveUSDC *big.Int) pool.Code {
	t.Helper()
	p, err := uniswapv2.NewPool(common.HexToAddress(address), weth, usdc, reserveWETH, reserveUSDC, uniswapv2.DefaultFeeBps, 0)
	require.NoError(t, err)
	return pool.NewCode(provider, p, nil)
}

func TestFetcherFeedsRouter(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	oneWETH := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	deep := &staticProvider{name: "A", codes: []pool.Code{
		pair(t, "A", "0xa1", new(big.Int).Mul(big.NewInt(250), oneWETH), big.NewInt(500_000_000_000)),
	}}
	shallow := &staticProvider{name: "B", codes: []pool.Code{
		pair(t, "B", "0xb1", big.NewInt(2_500_000_000_000_000), big.NewInt(4_987_500)),
	}}
	broken := &staticProvider{name: "C", err: errors.New("rpc unavailable")}

	f, err := fetcher.New(fetcher.Config{
		Providers:  []provider.Provider{deep, shallow, broken},
		ChainID:    chains.Mainnet,
		RetryDelay: time.Millisecond,
		Registry:   prometheus.NewRegistry(),
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(f.StopFetching)

	r, err := router.New(router.Config{
		Source:   f,
		TokenIn:  weth,
		TokenOut: usdc,
		AmountIn: oneWETH,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}, router.WithInterval(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(r.StopRouting)

	published := make(chan *route.Route, 16)
	require.NoError(t, f.StartFetching(context.Background(), weth, usdc))
	require.NoError(t, r.StartRouting(func(rt *route.Route) { published <- rt }))

	// B may be merged first and published on its own; A replaces it.
	var rt *route.Route
	timeout := time.After(2 * time.Second)
	for rt == nil || rt.Legs[0].Code.Provider != "A" {
		select {
		case rt = <-published:
			require.Len(t, rt.Legs, 1)
		case <-timeout:
			t.Fatal("timed out waiting for a route through A")
		}
	}
	assert.Equal(t, "A", rt.Legs[0].Code.Provider)
	// 500000 * 0.997 / (250 + 0.997) USDC
	assert.InEpsilon(t, 1_986_079_514, float64(rt.AmountOut.Int64()), 1e-6)

	best, err := r.BestRoute()
	require.NoError(t, err)
	assert.Equal(t, "A", best.Legs[0].Code.Provider)

	require.Eventually(t, func() bool {
		return broken.attemptCount() == fetcher.DefaultDiscoveryAttempts
	}, 2*time.Second, time.Millisecond)
	assert.ElementsMatch(t, []string{"A", "B"}, f.CurrentPoolRegistry().Providers())

	r.StopRouting()
	f.StopFetching()
	assert.Zero(t, f.CurrentPoolRegistry().Len())
}
