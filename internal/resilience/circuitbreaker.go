// Package resilience provides the failover primitives that keep a
// conversation turn alive when a provider misbehaves: a three-state circuit
// breaker and provider chains that try the next healthy backend when the
// preferred one fails. Only a failure of every backend in a chain reaches
// the caller, as a combined error naming each backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerProbing allows a limited number of trial calls after the
	// cooldown; success closes the breaker, failure re-opens it.
	BreakerProbing
)

// String returns the lowercase state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default: 3.
	FailureLimit int

	// Cooldown is how long a tripped breaker rejects calls before probing.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is how many trial calls the probing state admits before
	// the breaker stays open until the next cooldown. Default: 1.
	ProbeBudget int

	Logger *slog.Logger
}

// Breaker is a consecutive-failure circuit breaker. Create it with
// [NewBreaker].
type Breaker struct {
	name        string
	limit       int
	cooldown    time.Duration
	probeBudget int
	logger      *slog.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probesOut int

	now func() time.Time
}

// NewBreaker returns a closed breaker with cfg applied.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:        cfg.Name,
		limit:       cfg.FailureLimit,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		logger:      logger.With("breaker", cfg.Name),
		now:         time.Now,
	}
}

// Do runs fn when the breaker admits the call, recording the outcome.
// Rejected calls return [ErrCircuitOpen] without running fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// admit decides whether a call may proceed and accounts for probes.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = BreakerProbing
		b.probesOut = 0
		b.logger.Info("circuit probing after cooldown")
		fallthrough
	case BreakerProbing:
		if b.probesOut >= b.probeBudget {
			return ErrCircuitOpen
		}
		b.probesOut++
	}
	return nil
}

// record folds one call outcome into the breaker state.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == BreakerProbing {
			b.logger.Info("circuit closed after successful probe")
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	if b.state == BreakerProbing {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn("circuit re-opened, probe failed")
		return
	}

	b.failures++
	if b.failures >= b.limit {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures)
	}
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [BreakerProbing]; the transition itself happens on the
// next admitted call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probesOut = 0
}
