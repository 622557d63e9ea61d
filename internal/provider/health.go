package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// healthState is the availability state of a guarded provider.
type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // failing, backing off
)

// String returns a human-readable label for the health state.
func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// HealthConfig controls the guard's backoff.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 5s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the exponential backoff. Default: 5m.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// defaults fills zero-value fields with sensible defaults.
func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
}

// healthTracker implements exponential backoff on consecutive failures.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange is called outside the lock whenever the state
	// transitions. It keeps the tracker decoupled from logging.
	onStateChange func(from, to healthState)

	mu              sync.Mutex
	state           healthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:   cfg,
		state: stateHealthy,
		now:   time.Now,
	}
}

// IsAvailable reports whether a request may be attempted. A provider in
// cooldown becomes available for one trial request once its backoff expires.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateHealthy {
		return true
	}
	return !h.now().Before(h.cooldownExpires)
}

// RecordSuccess resets the tracker to healthy.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.currentBackoff = 0
	h.mu.Unlock()

	if prev != stateHealthy && h.onStateChange != nil {
		h.onStateChange(prev, stateHealthy)
	}
}

// RecordFailure enters or extends cooldown, doubling the backoff each time.
func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if h.currentBackoff == 0 {
		h.currentBackoff = h.cfg.InitialBackoff
	} else {
		h.currentBackoff *= 2
	}
	h.currentBackoff = min(h.currentBackoff, h.cfg.MaxBackoff)
	h.cooldownExpires = h.now().Add(h.currentBackoff)
	h.state = stateCooldown
	h.mu.Unlock()

	if prev != stateCooldown && h.onStateChange != nil {
		h.onStateChange(prev, stateCooldown)
	}
}

func (h *healthTracker) State() healthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Guard wraps a Provider and fails fast with ErrProviderDown while the
// backend is cooling down after errors.
type Guard struct {
	next    Provider
	tracker *healthTracker
}

// Compile-time interface check.
var _ Provider = (*Guard)(nil)

// NewGuard wraps p. State transitions are logged on logger.
func NewGuard(p Provider, cfg HealthConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	t := newHealthTracker(cfg)
	model := p.ModelName()
	t.onStateChange = func(from, to healthState) {
		logger.Warn("provider: health changed", "model", model, "from", from.String(), "to", to.String())
	}
	return &Guard{next: p, tracker: t}
}

// Complete implements Provider.
func (g *Guard) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if !g.tracker.IsAvailable() {
		return CompletionResponse{}, fmt.Errorf("provider: %s cooling down: %w", g.next.ModelName(), ErrProviderDown)
	}

	resp, err := g.next.Complete(ctx, req)
	switch {
	case err == nil:
		g.tracker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// Caller gave up; says nothing about the backend.
	default:
		g.tracker.RecordFailure()
	}
	return resp, err
}

// ModelName implements Provider.
func (g *Guard) ModelName() string { return g.next.ModelName() }

// Available reports whether the guard would currently attempt a call.
func (g *Guard) Available() bool { return g.tracker.IsAvailable() }
