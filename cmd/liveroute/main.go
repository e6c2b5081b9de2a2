package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/config"
	"github.com/defistate/defistate-router-go/ethrpc"
	"github.com/defistate/defistate-router-go/fetcher"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/defistate/defistate-router-go/provider"
	"github.com/defistate/defistate-router-go/route"
	"github.com/defistate/defistate-router-go/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	close := func() {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load configuration", "error", err)
		close()
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	prometheusRegistry := prometheus.DefaultRegisterer

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network, err := chains.Lookup(cfg.ChainID)
	if err != nil {
		rootLogger.Error("Unsupported network", "chain_id", cfg.ChainID, "error", err)
		close()
	}

	client, err := ethrpc.Dial(ctx, cfg.RPC.Endpoints, cfg.RPC.RequestsPerSecond, rootLogger.With("component", "ethrpc"))
	if err != nil {
		rootLogger.Error("Failed to dial RPC endpoints", "error", err)
		close()
	}
	defer client.Close()

	var heads provider.HeadSource
	if cfg.RPC.SubscribeHeads {
		heads = client
	}

	providers, err := buildProviders(cfg, network, client, heads, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize providers", "error", err)
		close()
	}

	dataFetcher, err := fetcher.New(fetcher.Config{
		Providers:         providers,
		ChainID:           network.ID,
		DiscoveryAttempts: cfg.Fetcher.DiscoveryAttempts,
		RetryDelay:        cfg.Fetcher.RetryDelay,
		MaxRetryDelay:     cfg.Fetcher.MaxRetryDelay,
		Registry:          prometheusRegistry,
		Logger:            rootLogger.With("component", "fetcher"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize Data Fetcher", "error", err)
		close()
	}

	// Validated by config.Load.
	tokenIn, tokenOut, _ := cfg.Tokens()
	amountIn, _ := cfg.AmountIn()
	maxGasPrice, _ := cfg.MaxGasPrice()

	rt, err := router.New(
		router.Config{
			Source:      dataFetcher,
			TokenIn:     tokenIn,
			TokenOut:    tokenOut,
			AmountIn:    amountIn,
			MaxGasPrice: maxGasPrice,
			Registry:    prometheusRegistry,
			Logger:      rootLogger.With("component", "router"),
		},
		router.WithInterval(cfg.Router.Interval),
		router.WithChangeThreshold(*cfg.Router.ChangeThreshold),
		router.WithMaxHops(cfg.Router.MaxHops),
		router.WithSlippageBps(cfg.Router.SlippageBps),
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Router", "error", err)
		close()
	}

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, rootLogger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := dataFetcher.StartFetching(ctx, tokenIn, tokenOut); err != nil {
		rootLogger.Error("Failed to start fetching", "error", err)
		close()
	}
	defer dataFetcher.StopFetching()

	err = rt.StartRouting(func(r *route.Route) {
		fmt.Println(rt.RouteToString(r, tokenIn, tokenOut))
	})
	if err != nil {
		rootLogger.Error("Failed to start routing", "error", err)
		close()
	}
	defer rt.StopRouting()

	<-ctx.Done()
	rootLogger.Info("Shutting down")
}

// buildProviders instantiates one provider per configured entry.
func buildProviders(cfg *config.Config, network chains.Network, client *ethrpc.Client, heads provider.HeadSource, logger *slog.Logger) ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providerLogger := logger.With("component", "provider", "provider", pc.Name)

		var (
			p   provider.Provider
			err error
		)
		switch pc.Type {
		case config.ProviderUniswapV2:
			p, err = uniswapv2.NewProvider(uniswapv2.Config{
				Name:            pc.Name,
				Factory:         pc.FactoryAddress(),
				FeeBps:          pc.FeeBps,
				GasEstimate:     pc.GasEstimate,
				BaseTokens:      network.BaseTokens,
				RefreshInterval: pc.RefreshInterval,
				Caller:          client,
				Heads:           heads,
				Logger:          providerLogger,
			})
		case config.ProviderUniswapV3:
			p, err = uniswapv3.NewProvider(uniswapv3.Config{
				Name:            pc.Name,
				Factory:         pc.FactoryAddress(),
				FeeTiers:        pc.FeeTiers,
				GasEstimate:     pc.GasEstimate,
				BaseTokens:      network.BaseTokens,
				RefreshInterval: pc.RefreshInterval,
				Caller:          client,
				Heads:           heads,
				Logger:          providerLogger,
			})
		default:
			err = fmt.Errorf("unknown provider type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", addr)
	return srv
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.Load(*configPath)
}
