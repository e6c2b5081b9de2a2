// Package config loads and validates the YAML configuration of the liveroute
// process.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/token"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	ProviderUniswapV2 = "uniswapv2"
	ProviderUniswapV3 = "uniswapv3"

	DefaultLogLevel          = "info"
	DefaultRequestsPerSecond = 20
	DefaultChangeThreshold   = 0.001
	DefaultMaxHops           = 3
	DefaultSlippageBps       = 50
	DefaultInterval          = time.Second
	DefaultMaxGasPriceGwei   = "30"
)

// Config is the root of config.yaml.
type Config struct {
	ChainID   uint64           `yaml:"chain_id"`
	LogLevel  string           `yaml:"log_level"`
	RPC       RPCConfig        `yaml:"rpc"`
	Swap      SwapConfig       `yaml:"swap"`
	Router    RouterConfig     `yaml:"router"`
	Fetcher   FetcherConfig    `yaml:"fetcher"`
	Providers []ProviderConfig `yaml:"providers"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

type RPCConfig struct {
	Endpoints         []string `yaml:"endpoints"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	// SubscribeHeads refreshes providers on every new block. Needs ws:// endpoints.
	SubscribeHeads bool `yaml:"subscribe_heads"`
}

type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
}

// SwapConfig is the routed request. Amounts are decimal strings in whole
// token units ("1.5"); the gas price is in gwei.
type SwapConfig struct {
	TokenIn         TokenConfig `yaml:"token_in"`
	TokenOut        TokenConfig `yaml:"token_out"`
	AmountIn        string      `yaml:"amount_in"`
	MaxGasPriceGwei string      `yaml:"max_gas_price_gwei"`
}

type RouterConfig struct {
	Interval time.Duration `yaml:"interval"`
	// ChangeThreshold is a pointer so that an explicit 0 survives defaulting.
	ChangeThreshold *float64 `yaml:"change_threshold"`
	MaxHops         int      `yaml:"max_hops"`
	SlippageBps     uint32   `yaml:"slippage_bps"`
}

type FetcherConfig struct {
	DiscoveryAttempts int           `yaml:"discovery_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
}

type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"`
	Factory         string        `yaml:"factory"`
	// FeeBps is a pointer so that an explicit 0 configures a fee-free venue.
	FeeBps          *uint16       `yaml:"fee_bps"`
	FeeTiers        []uint32      `yaml:"fee_tiers"`
	GasEstimate     uint64        `yaml:"gas_estimate"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding yaml: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RPC.RequestsPerSecond == 0 {
		c.RPC.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Swap.MaxGasPriceGwei == "" {
		c.Swap.MaxGasPriceGwei = DefaultMaxGasPriceGwei
	}
	if c.Router.Interval == 0 {
		c.Router.Interval = DefaultInterval
	}
	if c.Router.ChangeThreshold == nil {
		v := DefaultChangeThreshold
		c.Router.ChangeThreshold = &v
	}
	if c.Router.MaxHops == 0 {
		c.Router.MaxHops = DefaultMaxHops
	}
	if c.Router.SlippageBps == 0 {
		c.Router.SlippageBps = DefaultSlippageBps
	}
	for i := range c.Providers {
		if c.Providers[i].Name == "" {
			c.Providers[i].Name = c.Providers[i].Type
		}
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if !chains.IsSupported(c.ChainID) {
		return fmt.Errorf("config: %w: chain_id %d", chains.ErrUnsupportedNetwork, c.ChainID)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if len(c.RPC.Endpoints) == 0 {
		return errors.New("config: rpc.endpoints is required")
	}
	if c.RPC.RequestsPerSecond < 0 {
		return errors.New("config: rpc.requests_per_second must not be negative")
	}

	tokenIn, tokenOut, err := c.Tokens()
	if err != nil {
		return err
	}
	if err := chains.ValidatePair(tokenIn, tokenOut); err != nil {
		return fmt.Errorf("config: swap: %w", err)
	}
	if _, err := c.AmountIn(); err != nil {
		return err
	}
	if _, err := c.MaxGasPrice(); err != nil {
		return err
	}

	if c.Router.Interval < 0 {
		return errors.New("config: router.interval must not be negative")
	}
	if *c.Router.ChangeThreshold < 0 {
		return errors.New("config: router.change_threshold must not be negative")
	}
	if c.Router.MaxHops < 0 {
		return errors.New("config: router.max_hops must not be negative")
	}
	if c.Router.SlippageBps >= 10_000 {
		return errors.New("config: router.slippage_bps must be below 10000")
	}
	if c.Fetcher.DiscoveryAttempts < 0 || c.Fetcher.RetryDelay < 0 || c.Fetcher.MaxRetryDelay < 0 {
		return errors.New("config: fetcher values must not be negative")
	}

	if len(c.Providers) == 0 {
		return errors.New("config: at least one provider is required")
	}
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.validate(); err != nil {
			return fmt.Errorf("config: providers[%d]: %w", i, err)
		}
		if names[p.Name] {
			return fmt.Errorf("config: providers[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
	}
	return nil
}

func (p ProviderConfig) validate() error {
	switch p.Type {
	case ProviderUniswapV2:
		if p.FeeBps != nil && *p.FeeBps >= 10_000 {
			return fmt.Errorf("fee_bps %d out of range", *p.FeeBps)
		}
	case ProviderUniswapV3:
		for _, tier := range p.FeeTiers {
			if tier == 0 || tier >= 1_000_000 {
				return fmt.Errorf("fee tier %d out of range", tier)
			}
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
	if !common.IsHexAddress(p.Factory) {
		return fmt.Errorf("factory %q is not an address", p.Factory)
	}
	if p.RefreshInterval < 0 {
		return errors.New("refresh_interval must not be negative")
	}
	return nil
}

// FactoryAddress returns the parsed factory address.
func (p ProviderConfig) FactoryAddress() common.Address {
	return common.HexToAddress(p.Factory)
}

// Tokens returns the swap's input and output tokens on the configured chain.
func (c *Config) Tokens() (token.Token, token.Token, error) {
	in, err := c.Swap.TokenIn.token(c.ChainID)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("config: swap.token_in: %w", err)
	}
	out, err := c.Swap.TokenOut.token(c.ChainID)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("config: swap.token_out: %w", err)
	}
	return in, out, nil
}

// token builds the configured token. When only the address is given, the
// metadata of a token the network knows is used.
func (t TokenConfig) token(chainID uint64) (token.Token, error) {
	if t.Address == "" {
		return token.Token{}, errors.New("address is required")
	}
	if t.Decimals == 0 && t.Symbol == "" && common.IsHexAddress(t.Address) {
		if network, err := chains.Lookup(chainID); err == nil {
			if known, ok := network.Tokens().GetByAddress(common.HexToAddress(t.Address)); ok {
				return known, nil
			}
		}
	}
	return token.New(chainID, t.Address, t.Decimals, t.Symbol, t.Name)
}

// AmountIn returns swap.amount_in in the input token's smallest unit.
func (c *Config) AmountIn() (*big.Int, error) {
	amount, err := ParseUnits(c.Swap.AmountIn, c.Swap.TokenIn.Decimals)
	if err != nil {
		return nil, fmt.Errorf("config: swap.amount_in: %w", err)
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("config: swap.amount_in must be positive")
	}
	return amount, nil
}

// MaxGasPrice returns swap.max_gas_price_gwei in wei.
func (c *Config) MaxGasPrice() (*big.Int, error) {
	price, err := ParseUnits(c.Swap.MaxGasPriceGwei, 9)
	if err != nil {
		return nil, fmt.Errorf("config: swap.max_gas_price_gwei: %w", err)
	}
	if price.Sign() < 0 {
		return nil, errors.New("config: swap.max_gas_price_gwei must not be negative")
	}
	return price, nil
}

// ParseUnits converts a decimal string such as "1.5" into an integer amount
// scaled by 10^decimals. More fractional digits than decimals is an error.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("amount is required")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("config: log_level %q: %w", level, err)
	}
	return l, nil
}
