package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/defistate/defistate-router-go/ethrpc"
	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/provider"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const (
	factoryABI = `[{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}]`
	pairABI    = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}]`
)

var (
	factoryContract = ethrpc.MustParseABI(factoryABI)
	pairContract    = ethrpc.MustParseABI(pairABI)
)

// Config holds the settings of one constant-product venue.
type Config struct {
	Name            string
	Factory         common.Address
	// FeeBps is the swap fee. Nil uses DefaultFeeBps; zero configures a fee-free venue.
	FeeBps          *uint16
	GasEstimate     uint64
	BaseTokens      []token.Token
	RefreshInterval time.Duration
	Caller          ethereum.ContractCaller
	// Heads, when set, triggers a refresh on every new block.
	Heads  provider.HeadSource
	Logger provider.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		return errors.New("config: Name is required")
	}
	if c.Factory == (common.Address{}) {
		return errors.New("config: Factory is required")
	}
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.FeeBps != nil && *c.FeeBps >= basisPoints {
		return fmt.Errorf("config: FeeBps %d out of range", *c.FeeBps)
	}
	return nil
}

// Provider discovers pairs through the factory and refreshes their reserves.
type Provider struct {
	cfg       Config
	feeBps    uint16
	snapshot  provider.Snapshot
	refresher *provider.Refresher
}

var _ provider.Provider = (*Provider)(nil)

// NewProvider validates cfg and applies the fee and gas defaults.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	feeBps := DefaultFeeBps
	if cfg.FeeBps != nil {
		feeBps = *cfg.FeeBps
	}
	if cfg.GasEstimate == 0 {
		cfg.GasEstimate = DefaultGasEstimate
	}
	return &Provider{
		cfg:    cfg,
		feeBps: feeBps,
		refresher: &provider.Refresher{
			Name:     cfg.Name,
			Interval: cfg.RefreshInterval,
			Heads:    cfg.Heads,
			Logger:   cfg.Logger,
		},
	}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

// DiscoverPools looks up the pair for every combination of tokenA, tokenB and
// the base tokens. Pairs that fail to load are skipped; an error is returned
// only when nothing could be loaded.
func (p *Provider) DiscoverPools(ctx context.Context, tokenA, tokenB token.Token) ([]pool.Code, error) {
	pairs := provider.CandidatePairs(tokenA, tokenB, p.cfg.BaseTokens)

	var (
		codes []pool.Code
		errs  []error
	)
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, found, err := p.loadPair(ctx, pair[0], pair[1])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if found {
			codes = append(codes, code)
		}
	}

	if len(codes) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%s discovery failed: %w", p.cfg.Name, errors.Join(errs...))
	}
	if len(errs) > 0 {
		p.cfg.Logger.Warn("Partial discovery", "provider", p.cfg.Name, "failed_pairs", len(errs), "error", errors.Join(errs...))
	}

	provider.SortCodes(codes)
	if !p.snapshot.PublishIf(ctx, codes) {
		return nil, ctx.Err()
	}
	p.cfg.Logger.Info("Pools discovered", "provider", p.cfg.Name, "pair", pool.NewPairKey(tokenA, tokenB), "pools", len(codes))
	return codes, nil
}

func (p *Provider) StartContinuousRefresh(ctx context.Context, tokenA, tokenB token.Token) {
	if p.refresher.Start(ctx, pool.NewPairKey(tokenA, tokenB), p.refresh) {
		p.cfg.Logger.Debug("Refresh started", "provider", p.cfg.Name)
	}
}

func (p *Provider) HasUpdatedSinceLastCheck() bool { return p.snapshot.CheckUpdated() }

func (p *Provider) CurrentPools() []pool.Code { return p.snapshot.Pools() }

func (p *Provider) StopContinuousRefresh() { p.refresher.Stop() }

// refresh reloads reserves of every known pair. A pair that fails keeps its
// previous snapshot. Nothing is published unless some reserve moved.
func (p *Provider) refresh(ctx context.Context) error {
	current := p.snapshot.Pools()
	if len(current) == 0 {
		return nil
	}

	next := make([]pool.Code, len(current))
	changed := false
	var errs []error
	for i, code := range current {
		next[i] = code
		old, ok := code.Pool.(*Pool)
		if !ok {
			continue
		}
		r0, r1, err := p.reserves(ctx, old.Address())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		updated := old.WithReserves(r0, r1)
		if !updated.SameState(old) {
			next[i] = pool.NewCode(code.Provider, updated, code.Params)
			changed = true
		}
	}

	if changed {
		p.snapshot.PublishIf(ctx, next)
	}
	return errors.Join(errs...)
}

func (p *Provider) loadPair(ctx context.Context, a, b token.Token) (pool.Code, bool, error) {
	out, err := ethrpc.Call(ctx, p.cfg.Caller, factoryContract, p.cfg.Factory, "getPair", a.Address, b.Address)
	if err != nil {
		return pool.Code{}, false, err
	}
	pairAddress, ok := out[0].(common.Address)
	if !ok {
		return pool.Code{}, false, fmt.Errorf("getPair returned %T", out[0])
	}
	if pairAddress == (common.Address{}) {
		return pool.Code{}, false, nil
	}

	r0, r1, err := p.reserves(ctx, pairAddress)
	if err != nil {
		return pool.Code{}, false, err
	}
	t0, t1 := token.Sort(a, b)
	pl, err := NewPool(pairAddress, t0, t1, r0, r1, p.feeBps, p.cfg.GasEstimate)
	if err != nil {
		return pool.Code{}, false, err
	}
	return pool.NewCode(p.cfg.Name, pl, map[string]string{"fee_bps": strconv.Itoa(int(p.feeBps))}), true, nil
}

func (p *Provider) reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	out, err := ethrpc.Call(ctx, p.cfg.Caller, pairContract, pair, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves on %s returned unexpected types", pair.Hex())
	}
	return r0, r1, nil
}

