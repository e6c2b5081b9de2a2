package config

import (
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
chain_id: 1
rpc:
  endpoints: ["ws://localhost:8546"]
swap:
  token_in:
    address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    decimals: 18
    symbol: WETH
  token_out:
    address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    decimals: 6
    symbol: USDC
  amount_in: "1.5"
providers:
  - type: uniswapv2
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
  - name: UniswapV3
    type: uniswapv3
    factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984"
    fee_tiers: [500, 3000]
    refresh_interval: 6s
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultRequestsPerSecond, cfg.RPC.RequestsPerSecond)
	assert.Equal(t, DefaultInterval, cfg.Router.Interval)
	require.NotNil(t, cfg.Router.ChangeThreshold)
	assert.Equal(t, DefaultChangeThreshold, *cfg.Router.ChangeThreshold)
	assert.Equal(t, DefaultMaxHops, cfg.Router.MaxHops)
	assert.Equal(t, uint32(DefaultSlippageBps), cfg.Router.SlippageBps)
	assert.Equal(t, "uniswapv2", cfg.Providers[0].Name, "name defaults to type")
	assert.Equal(t, 6*time.Second, cfg.Providers[1].RefreshInterval)
	assert.Equal(t, []uint32{500, 3000}, cfg.Providers[1].FeeTiers)
	assert.Nil(t, cfg.Providers[0].FeeBps, "unset fee is left to the provider default")

	in, out, err := cfg.Tokens()
	require.NoError(t, err)
	assert.Equal(t, uint64(chains.Mainnet), in.ChainID)
	assert.Equal(t, "WETH", in.Symbol)
	assert.Equal(t, uint8(6), out.Decimals)

	amount, err := cfg.AmountIn()
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", amount.String())

	gas, err := cfg.MaxGasPrice()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30_000_000_000), gas)
}

func TestParseKeepsExplicitZeroThreshold(t *testing.T) {
	cfg, err := Parse([]byte(validYAML + "router:\n  change_threshold: 0\n  interval: 250ms\n"))
	require.NoError(t, err)
	assert.Zero(t, *cfg.Router.ChangeThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Router.Interval)
}

func TestParseKeepsExplicitZeroFee(t *testing.T) {
	doc := strings.Replace(validYAML, "  - type: uniswapv2\n", "  - type: uniswapv2\n    fee_bps: 0\n", 1)
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, cfg.Providers[0].FeeBps)
	assert.Zero(t, *cfg.Providers[0].FeeBps)
}

func TestTokensFromCatalog(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	cfg.Swap.TokenOut = TokenConfig{Address: "0xdac17f958d2ee523a2206206994597c13d831ec7"}

	_, out, err := cfg.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "USDT", out.Symbol)
	assert.Equal(t, uint8(6), out.Decimals)

	cfg.Swap.TokenOut = TokenConfig{Address: "0x1111111111111111111111111111111111111111"}
	_, out, err = cfg.Tokens()
	require.NoError(t, err)
	assert.Zero(t, out.Decimals, "unknown tokens keep the configured metadata")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unsupported chain", func(c *Config) { c.ChainID = 56 }, "unsupported network"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"no endpoints", func(c *Config) { c.RPC.Endpoints = nil }, "rpc.endpoints"},
		{"bad token address", func(c *Config) { c.Swap.TokenIn.Address = "0x123" }, "swap.token_in"},
		{"missing token", func(c *Config) { c.Swap.TokenOut.Address = "" }, "swap.token_out"},
		{"same tokens", func(c *Config) { c.Swap.TokenOut = c.Swap.TokenIn }, "distinct"},
		{"zero amount", func(c *Config) { c.Swap.AmountIn = "0" }, "positive"},
		{"too precise amount", func(c *Config) { c.Swap.AmountIn = "0.0000000000000000001" }, "decimals"},
		{"garbage amount", func(c *Config) { c.Swap.AmountIn = "lots" }, "invalid amount"},
		{"negative threshold", func(c *Config) { v := -0.1; c.Router.ChangeThreshold = &v }, "change_threshold"},
		{"slippage", func(c *Config) { c.Router.SlippageBps = 10_000 }, "slippage_bps"},
		{"no providers", func(c *Config) { c.Providers = nil }, "provider"},
		{"unknown provider type", func(c *Config) { c.Providers[0].Type = "curve" }, "unknown type"},
		{"bad factory", func(c *Config) { c.Providers[0].Factory = "nope" }, "factory"},
		{"bad fee", func(c *Config) { fee := uint16(10_000); c.Providers[0].FeeBps = &fee }, "fee_bps"},
		{"bad fee tier", func(c *Config) { c.Providers[1].FeeTiers = []uint32{0} }, "fee tier"},
		{"duplicate names", func(c *Config) { c.Providers[1].Name = c.Providers[0].Name }, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, strings.HasPrefix(err.Error(), "config:"), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chain_id: [1"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "decoding yaml")
}

func TestExampleConfigIsValid(t *testing.T) {
	_, err := Load(filepath.Join("..", "config.example.yaml"))
	assert.NoError(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseUnitsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("whole amounts scale by 10^decimals", prop.ForAll(
		func(n int64, decimals uint8) bool {
			got, err := ParseUnits(big.NewInt(n).String(), decimals)
			if err != nil {
				return false
			}
			want := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
			return got.Cmp(want) == 0
		},
		gen.Int64Range(0, 1<<40),
		gen.UInt8Range(0, 30),
	))

	properties.Property("one extra fractional digit is rejected", prop.ForAll(
		func(decimals uint8) bool {
			s := "0." + strings.Repeat("0", int(decimals)) + "1"
			_, err := ParseUnits(s, decimals)
			return err != nil
		},
		gen.UInt8Range(0, 30),
	))

	properties.TestingRun(t)
}
