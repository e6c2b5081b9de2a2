// Package provider defines the Pool Provider contract and the building blocks
// protocol implementations share: snapshot publication and background refresh.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/pool"
	"github.com/defistate/defistate-router-go/token"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ErrPanic wraps a panic recovered from a provider call.
var ErrPanic = errors.New("provider panicked")

// Provider discovers and refreshes pools of one exchange protocol.
//
// DiscoverPools queries the protocol for every pool trading the pair and
// publishes the result as the provider's current snapshot. Failures are
// returned, never retried by the provider itself. It must return promptly once
// ctx is cancelled, since callers wait for it when stopping.
//
// StartContinuousRefresh begins refreshing previously discovered pools in the
// background until StopContinuousRefresh is called or ctx is cancelled. It is
// idempotent for the same pair.
//
// HasUpdatedSinceLastCheck is edge-triggered: it reports whether a new snapshot
// was published since the previous call and clears the flag.
//
// CurrentPools never blocks on network I/O.
//
// StopContinuousRefresh is safe to call when never started. After it returns
// the provider publishes nothing until refresh is started again.
type Provider interface {
	Name() string
	DiscoverPools(ctx context.Context, tokenA, tokenB token.Token) ([]pool.Code, error)
	StartContinuousRefresh(ctx context.Context, tokenA, tokenB token.Token)
	HasUpdatedSinceLastCheck() bool
	CurrentPools() []pool.Code
	StopContinuousRefresh()
}

// Safely runs fn, converting a panic into an error wrapping ErrPanic.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
