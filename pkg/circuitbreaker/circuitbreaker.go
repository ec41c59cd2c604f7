// Package circuitbreaker stops calling a failing face or transcription
// service for a cooldown period, then lets a single trial call through.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown ends.
	StateOpen
	// StateHalfOpen admits one trial call at a time.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned without calling the service while open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned while a half-open trial is in flight.
	ErrTooManyRequests = errors.New("circuit breaker trial call in flight")
)

type settings struct {
	tripAfter  int
	closeAfter int
	cooldown   time.Duration
	onChange   func(name string, from, to State)
	isFailure  func(error) bool
}

// Option adjusts a breaker.
type Option func(*settings)

// WithIsFailure decides which errors count against the service. Errors it
// rejects, such as a bad request, leave the breaker closed.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.isFailure = fn }
}

func withThresholds(tripAfter, closeAfter int) Option {
	return func(s *settings) {
		s.tripAfter, s.closeAfter = tripAfter, closeAfter
	}
}

func withCooldown(d time.Duration) Option {
	return func(s *settings) { s.cooldown = d }
}

func withOnChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onChange = fn }
}

// CircuitBreaker guards calls to one external service.
type CircuitBreaker struct {
	name string
	cfg  settings
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trial     bool
}

// New returns a closed breaker. Without options it opens after five
// consecutive failures and retries after thirty seconds.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{tripAfter: 5, closeAfter: 1, cooldown: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Execute calls fn unless the breaker rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.cooldown {
			return ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	case StateHalfOpen:
		if cb.trial {
			return ErrTooManyRequests
		}
	default:
		return nil
	}
	cb.trial = true
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	failed := err != nil && (cb.cfg.isFailure == nil || cb.cfg.isFailure(err))

	switch {
	case failed && cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.tripAfter {
			cb.moveTo(StateOpen)
		}
	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.closeAfter {
			cb.moveTo(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

// moveTo switches state and resets the streaks. Callers hold cb.mu.
func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.trial = 0, 0, false
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.onChange != nil && from != to {
		cb.cfg.onChange(cb.name, from, to)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot is the breaker as shown on /health.
type Snapshot struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

// Snapshot returns the name, state and current failure streak.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{Name: cb.name, State: cb.state.String(), Failures: cb.failures}
}

// FaceServiceBreaker opens after three failures so recognition requests fail
// fast while the model is down, and closes after two good trial calls.
func FaceServiceBreaker(onChange func(name string, from, to State), opts ...Option) *CircuitBreaker {
	base := []Option{withThresholds(3, 2), withCooldown(30 * time.Second), withOnChange(onChange)}
	return New("face-service", append(base, opts...)...)
}

// TranscriptionBreaker opens after five failures and waits a minute before
// the trial call.
func TranscriptionBreaker(onChange func(name string, from, to State), opts ...Option) *CircuitBreaker {
	base := []Option{withThresholds(5, 1), withCooldown(time.Minute), withOnChange(onChange)}
	return New("transcription", append(base, opts...)...)
}
