package uniswapv3

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
	factoryABI = `[{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}]`
	poolABI    = `[
		{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"liquidity","outputs":[{"name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	factoryContract = ethrpc.MustParseABI(factoryABI)
	poolContract    = ethrpc.MustParseABI(poolABI)
)

type Config struct {
	Name            string
	Factory         common.Address
	FeeTiers        []uint32
	GasEstimate     uint64
	BaseTokens      []token.Token
	RefreshInterval time.Duration
	Caller          ethereum.ContractCaller
	Heads           provider.HeadSource
	Logger          provider.Logger
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
	for _, fee := range c.FeeTiers {
		if fee == 0 || fee >= feeDenominator {
			return fmt.Errorf("config: fee tier %d out of range", fee)
		}
	}
	return nil
}

// Provider discovers pools through the factory, one lookup per fee tier, and
// refreshes their slot0 and liquidity.
type Provider struct {
	cfg       Config
	snapshot  provider.Snapshot
	refresher *provider.Refresher
}

var _ provider.Provider = (*Provider)(nil)

// NewProvider validates cfg. Without FeeTiers every standard tier is queried.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.FeeTiers) == 0 {
		cfg.FeeTiers = append([]uint32(nil), DefaultFeeTiers...)
	}
	if cfg.GasEstimate == 0 {
		cfg.GasEstimate = DefaultGasEstimate
	}
	return &Provider{
		cfg: cfg,
		refresher: &provider.Refresher{
			Name:     cfg.Name,
			Interval: cfg.RefreshInterval,
			Heads:    cfg.Heads,
			Logger:   cfg.Logger,
		},
	}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) DiscoverPools(ctx context.Context, tokenA, tokenB token.Token) ([]pool.Code, error) {
	var (
		codes []pool.Code
		errs  []error
	)
	for _, pair := range provider.CandidatePairs(tokenA, tokenB, p.cfg.BaseTokens) {
		for _, fee := range p.cfg.FeeTiers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			code, found, err := p.loadPool(ctx, pair[0], pair[1], fee)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if found {
				codes = append(codes, code)
			}
		}
	}

	if len(codes) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%s discovery failed: %w", p.cfg.Name, errors.Join(errs...))
	}
	if len(errs) > 0 {
		p.cfg.Logger.Warn("Partial discovery", "provider", p.cfg.Name, "failed_lookups", len(errs), "error", errors.Join(errs...))
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
		sqrtPrice, liquidity, tick, err := p.state(ctx, old.Address())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		updated, err := old.WithState(sqrtPrice, liquidity, tick)
		if err != nil {
			errs = append(errs, err)
			continue
		}
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

func (p *Provider) loadPool(ctx context.Context, token0, token1 token.Token, fee uint32) (pool.Code, bool, error) {
	out, err := ethrpc.Call(ctx, p.cfg.Caller, factoryContract, p.cfg.Factory, "getPool", token0.Address, token1.Address, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return pool.Code{}, false, err
	}
	address, ok := out[0].(common.Address)
	if !ok {
		return pool.Code{}, false, fmt.Errorf("getPool returned %T", out[0])
	}
	if address == (common.Address{}) {
		return pool.Code{}, false, nil
	}

	sqrtPrice, liquidity, tick, err := p.state(ctx, address)
	if err != nil {
		return pool.Code{}, false, err
	}
	// an initialized pool without in-range liquidity cannot quote
	if liquidity.Sign() == 0 {
		return pool.Code{}, false, nil
	}
	pl, err := NewPool(address, token0, token1, fee, sqrtPrice, liquidity, tick, p.cfg.GasEstimate)
	if err != nil {
		return pool.Code{}, false, err
	}
	return pool.NewCode(p.cfg.Name, pl, map[string]string{"fee": strconv.FormatUint(uint64(fee), 10)}), true, nil
}

func (p *Provider) state(ctx context.Context, address common.Address) (*big.Int, *big.Int, int32, error) {
	slot0, err := ethrpc.Call(ctx, p.cfg.Caller, poolContract, address, "slot0")
	if err != nil {
		return nil, nil, 0, err
	}
	liq, err := ethrpc.Call(ctx, p.cfg.Caller, poolContract, address, "liquidity")
	if err != nil {
		return nil, nil, 0, err
	}

	sqrtPrice, ok1 := slot0[0].(*big.Int)
	tick, ok2 := slot0[1].(*big.Int)
	liquidity, ok3 := liq[0].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil, 0, fmt.Errorf("pool %s returned unexpected state types", address.Hex())
	}
	return sqrtPrice, liquidity, int32(tick.Int64()), nil
}
