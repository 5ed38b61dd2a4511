package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllProvidersFailed wraps the combined per-provider errors returned when
// no entry in a [Chain] succeeds.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ChainConfig configures the per-entry breaker of every provider added to a
// [Chain].
type ChainConfig struct {
	Breaker BreakerConfig
	Logger  *slog.Logger

	// OnFallback is invoked when a request succeeds on a backend other
	// than the first, with the serving backend's name.
	OnFallback func(name string)
}

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain orders multiple backends of the same provider type by preference.
// A call runs against the first entry whose breaker admits it; on failure
// the next entry is tried. When every entry fails, the caller receives
// [ErrAllProvidersFailed] joined with each entry's error, labelled by name.
//
// Chain is append-only after construction and safe for concurrent use once
// fully assembled.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     ChainConfig
	logger  *slog.Logger
}

// NewChain creates a chain with primary as the preferred backend.
func NewChain[T any](primaryName string, primary T, cfg ChainConfig) *Chain[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain[T]{cfg: cfg, logger: logger}
	c.Add(primaryName, primary)
	return c
}

// Add appends a backend. Backends are tried in the order they were added.
func (c *Chain[T]) Add(name string, value T) {
	bcfg := c.cfg.Breaker
	bcfg.Name = name
	if bcfg.Logger == nil {
		bcfg.Logger = c.logger
	}
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(bcfg),
	})
}

// Names returns the backend names in preference order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of backends in the chain.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Run tries fn against each backend in order until one succeeds. Entries
// with an open breaker are skipped without being counted as a fresh failure.
func (c *Chain[T]) Run(fn func(name string, value T) error) error {
	var failures []error
	for i := range c.entries {
		entry := &c.entries[i]
		err := entry.breaker.Do(func() error {
			return fn(entry.name, entry.value)
		})
		if err == nil {
			if i > 0 && c.cfg.OnFallback != nil {
				c.cfg.OnFallback(entry.name)
			}
			return nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			c.logger.Debug("provider skipped, circuit open", "provider", entry.name)
		} else {
			c.logger.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return errors.Join(append([]error{ErrAllProvidersFailed}, failures...)...)
}

// RunWith tries fn against each backend in the chain until one succeeds and
// returns its result. Package-level because Go methods cannot introduce type
// parameters.
func RunWith[T any, R any](c *Chain[T], fn func(name string, value T) (R, error)) (R, error) {
	var result R
	err := c.Run(func(name string, value T) error {
		var innerErr error
		result, innerErr = fn(name, value)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
