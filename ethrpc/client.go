package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is the per-endpoint budget used when none is configured.
const DefaultRequestsPerSecond = 20

var ErrNoEndpoints = errors.New("ethrpc: at least one endpoint is required")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Backend is the subset of *ethclient.Client the Client drives.
type Backend interface {
	ethereum.ContractCaller
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

type endpoint struct {
	url     string
	backend Backend
	limiter *rate.Limiter
}

// Client round-robins contract calls across endpoints, each guarded by its
// own rate limiter. A failed call is retried once on the next endpoint.
type Client struct {
	endpoints []endpoint
	next      atomic.Uint64
	logger    Logger
}

// Dial connects to every url. http(s) endpoints serve calls only; ws(s)
// endpoints also serve head subscriptions.
func Dial(ctx context.Context, urls []string, requestsPerSecond int, logger Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	backends := make([]Backend, 0, len(urls))
	for _, url := range urls {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		backends = append(backends, c)
	}
	return NewClient(urls, backends, requestsPerSecond, logger)
}

// NewClient wraps already connected backends. urls label them in logs.
func NewClient(urls []string, backends []Backend, requestsPerSecond int, logger Logger) (*Client, error) {
	if len(backends) == 0 {
		return nil, ErrNoEndpoints
	}
	if len(urls) != len(backends) {
		return nil, fmt.Errorf("ethrpc: %d urls for %d backends", len(urls), len(backends))
	}
	if logger == nil {
		return nil, errors.New("ethrpc: logger is required")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}

	c := &Client{logger: logger}
	for i, b := range backends {
		c.endpoints = append(c.endpoints, endpoint{
			url:     urls[i],
			backend: b,
			limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		})
	}
	logger.Info("RPC client ready", "endpoints", len(c.endpoints), "rps_per_endpoint", requestsPerSecond)
	return c, nil
}

func (c *Client) Size() int { return len(c.endpoints) }

func (c *Client) pick() endpoint {
	n := c.next.Add(1) - 1
	return c.endpoints[n%uint64(len(c.endpoints))]
}

// CallContract implements ethereum.ContractCaller.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	attempts := min(2, len(c.endpoints))
	var lastErr error
	for i := 0; i < attempts; i++ {
		ep := c.pick()
		if err := ep.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := ep.backend.CallContract(ctx, msg, blockNumber)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.logger.Debug("Contract call failed", "endpoint", ep.url, "error", err)
	}
	return nil, lastErr
}

// SubscribeNewHead subscribes on the first endpoint that supports subscriptions.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	var errs []error
	for _, ep := range c.endpoints {
		sub, err := ep.backend.SubscribeNewHead(ctx, ch)
		if err == nil {
			return sub, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ep.url, err))
	}
	return nil, errors.Join(errs...)
}

func (c *Client) Close() {
	for _, ep := range c.endpoints {
		ep.backend.Close()
	}
}
