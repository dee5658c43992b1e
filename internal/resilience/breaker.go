// Package resilience protects callers from a backend that is down.
//
// The central type is [Breaker], a three-state circuit breaker
// (closed → open → half-open) that rejects calls immediately while a backend
// keeps failing. A breaker never retries: a rejected or failed call is
// returned to the caller as is. [Speech] applies a breaker to a
// [speech.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open.
var ErrOpen = errors.New("resilience: circuit open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a single probe call through. Its outcome closes or
	// re-opens the breaker.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive counted failures that opens
	// the breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before it admits a probe.
	// Default: 30s.
	Cooldown time.Duration

	// Counts decides whether an error says something about the backend's
	// health. When nil, every non-nil error counts.
	Counts func(error) bool

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// Logger receives state transitions. Default: slog.Default().
	Logger *slog.Logger
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	counts      func(error) bool
	now         func() time.Time
	log         *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker]. Zero-value config fields are replaced with
// defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Counts == nil {
		cfg.Counts = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		counts:      cfg.Counts,
		now:         cfg.Now,
		log:         cfg.Logger,
	}
}

// Do runs fn unless the breaker is open, and records its outcome. While open,
// or while a half-open probe is already in flight, Do returns [ErrOpen]
// without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.log.Info("circuit half-open", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed := b.counts(err)

	if probe {
		b.probing = false
		if failed {
			b.state = StateOpen
			b.openedAt = b.now()
			b.log.Warn("circuit re-opened after failed probe", "name", b.name, "err", err)
			return
		}
		b.state = StateClosed
		b.failures = 0
		b.log.Info("circuit closed", "name", b.name)
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
		b.log.Warn("circuit opened", "name", b.name, "consecutive_failures", b.failures, "err", err)
	}
}

// State returns the current [State]. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
