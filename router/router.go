// Package router keeps the best route for one swap request up to date and
// notifies a subscriber when it changes meaningfully.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/pathfinder"
	"github.com/defistate/defistate-router-go/registry"
	"github.com/defistate/defistate-router-go/route"
	"github.com/defistate/defistate-router-go/token"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultInterval        = time.Second
	DefaultChangeThreshold = 0.001
	DefaultMaxHops         = pathfinder.DefaultMaxHops
	DefaultSlippageBps     = 50
)

var (
	ErrInvalidRequest   = errors.New("router: invalid request")
	ErrAlreadyRouting   = errors.New("router: already routing")
	ErrRouteNotComputed = errors.New("router: route not computed yet")
	ErrNoRoute          = errors.New("router: no route")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolSource supplies the pool registry snapshot for each recomputation.
// *fetcher.Fetcher implements it.
type PoolSource interface {
	CurrentPoolRegistry() *registry.Snapshot
}

// RouteFinder searches a snapshot for the best route. A nil route with a nil
// error means no path exists.
type RouteFinder interface {
	FindBestRoute(snap *registry.Snapshot, tokenIn token.Token, amountIn *big.Int, tokenOut token.Token, maxGasPrice *big.Int) (*route.Route, error)
}

// Config is the swap request and its collaborators.
type Config struct {
	Source   PoolSource
	TokenIn  token.Token
	TokenOut token.Token
	AmountIn *big.Int
	// MaxGasPrice prices the route's gas in wei. Nil uses pathfinder.DefaultGasPrice.
	MaxGasPrice *big.Int
	Registry    prometheus.Registerer
	Logger      Logger
}

func (c *Config) validate() error {
	if c.Source == nil {
		return errors.New("config: Source is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if err := chains.ValidatePair(c.TokenIn, c.TokenOut); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if c.AmountIn == nil || c.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount in must be positive", ErrInvalidRequest)
	}
	if c.MaxGasPrice != nil && c.MaxGasPrice.Sign() < 0 {
		return fmt.Errorf("%w: max gas price must not be negative", ErrInvalidRequest)
	}
	return nil
}

type options struct {
	interval    time.Duration
	threshold   float64
	maxHops     int
	slippageBps uint32
	finder      RouteFinder
}

// Option configures optional Router behavior.
type Option interface {
	apply(*options)
}

type funcOption func(*options)

func (f funcOption) apply(o *options) { f(o) }

// WithInterval sets the recompute period.
func WithInterval(d time.Duration) Option {
	return funcOption(func(o *options) {
		if d > 0 {
			o.interval = d
		}
	})
}

// WithChangeThreshold sets the relative output change, on an unchanged path,
// above which a new route is published. Zero publishes every change.
func WithChangeThreshold(v float64) Option {
	return funcOption(func(o *options) {
		if v >= 0 {
			o.threshold = v
		}
	})
}

// WithMaxHops bounds the number of legs of the default route finder.
func WithMaxHops(n int) Option {
	return funcOption(func(o *options) {
		if n > 0 {
			o.maxHops = n
		}
	})
}

// WithSlippageBps sets the slippage applied by RouteToString.
func WithSlippageBps(bps uint32) Option {
	return funcOption(func(o *options) { o.slippageBps = bps })
}

// WithFinder replaces the route search. WithMaxHops is ignored when set.
func WithFinder(f RouteFinder) Option {
	return funcOption(func(o *options) { o.finder = f })
}

// result is what BestRoute reports.
type result struct {
	route *route.Route
	err   error
}

// Router recomputes the best route on a fixed interval. It is Idle until
// StartRouting and returns to Idle on StopRouting.
type Router struct {
	cfg     Config
	opts    options
	finder  RouteFinder
	logger  Logger
	metrics *Metrics
	pair    string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	best atomic.Pointer[result]
}

// New validates cfg and returns an idle Router. Without WithFinder the route
// search is a pathfinder.Finder bounded by WithMaxHops.
func New(cfg Config, opts ...Option) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := options{
		interval:    DefaultInterval,
		threshold:   DefaultChangeThreshold,
		maxHops:     DefaultMaxHops,
		slippageBps: DefaultSlippageBps,
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	finder := o.finder
	if finder == nil {
		finder = pathfinder.New(o.maxHops)
	}
	cfg.AmountIn = new(big.Int).Set(cfg.AmountIn)

	return &Router{
		cfg:     cfg,
		opts:    o,
		finder:  finder,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
		pair:    cfg.TokenIn.String() + "/" + cfg.TokenOut.String(),
	}, nil
}

// StartRouting starts the recompute loop. callback runs on the loop's
// goroutine, in computation order, and must not call StopRouting.
func (r *Router) StartRouting(callback func(*route.Route)) error {
	if callback == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyRouting
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.best.Store(nil)

	go r.loop(ctx, done, callback)
	r.logger.Info("Routing started", "pair", r.pair, "amount_in", r.cfg.AmountIn.String(),
		"interval", r.opts.interval, "threshold", r.opts.threshold)
	return nil
}

// StopRouting cancels the loop and waits for it to exit. No callback runs
// after it returns. Calling it while idle is a no-op.
func (r *Router) StopRouting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
	r.logger.Info("Routing stopped", "pair", r.pair)
}

// BestRoute returns the last published route. It returns ErrRouteNotComputed
// before the first successful computation and ErrNoRoute when the latest
// computation found no path.
func (r *Router) BestRoute() (*route.Route, error) {
	res := r.best.Load()
	if res == nil {
		return nil, ErrRouteNotComputed
	}
	return res.route, res.err
}

// RouteToString formats a route with the router's slippage setting.
func (r *Router) RouteToString(rt *route.Route, tokenIn, tokenOut token.Token) string {
	return FormatRoute(rt, tokenIn, tokenOut, r.opts.slippageBps)
}

func (r *Router) loop(ctx context.Context, done chan struct{}, callback func(*route.Route)) {
	defer close(done)

	ticker := time.NewTicker(r.opts.interval)
	defer ticker.Stop()

	var published *route.Route
	for {
		published = r.recompute(ctx, published, callback)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// recompute runs one cycle and returns the route last delivered to callback.
func (r *Router) recompute(ctx context.Context, published *route.Route, callback func(*route.Route)) *route.Route {
	if ctx.Err() != nil {
		return published
	}

	timer := prometheus.NewTimer(r.metrics.RecomputeDuration.WithLabelValues(r.pair))
	snap := r.cfg.Source.CurrentPoolRegistry()
	next, err := r.finder.FindBestRoute(snap, r.cfg.TokenIn, r.cfg.AmountIn, r.cfg.TokenOut, r.cfg.MaxGasPrice)
	timer.ObserveDuration()

	switch {
	case err != nil:
		r.metrics.SearchErrors.WithLabelValues(r.pair).Inc()
		r.logger.Warn("Route search failed, keeping previous route", "pair", r.pair, "error", err)
		return published

	case next == nil:
		if ctx.Err() != nil {
			return published
		}
		r.metrics.NoRoute.WithLabelValues(r.pair).Inc()
		if published != nil || r.best.Load() == nil {
			r.logger.Info("No route available", "pair", r.pair, "pools", poolCount(snap))
		}
		r.best.Store(&result{err: ErrNoRoute})
		// A path that reappears is published as a first result.
		return nil
	}

	if !shouldPublish(published, next, r.opts.threshold) {
		return published
	}
	if ctx.Err() != nil {
		return published
	}
	r.best.Store(&result{route: next})
	r.metrics.RoutesPublished.WithLabelValues(r.pair).Inc()
	r.logger.Debug("Publishing route", "pair", r.pair, "amount_out", next.AmountOut.String(), "hops", next.Hops())
	callback(next)
	return next
}

// shouldPublish reports whether next differs meaningfully from prev: a first
// result, a different path, or an output change above threshold.
func shouldPublish(prev, next *route.Route, threshold float64) bool {
	if prev == nil {
		return true
	}
	if !next.SamePath(prev) {
		return true
	}
	return next.RelativeChange(prev) > threshold
}

func poolCount(snap *registry.Snapshot) int {
	if snap == nil {
		return 0
	}
	return snap.Len()
}
