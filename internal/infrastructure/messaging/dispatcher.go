package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher subscribes to a bus and runs named handlers through a middleware
// chain, retrying failures and parking exhausted events in a dead letter queue.
type Dispatcher struct {
	eventBus    shared.EventSubscriber
	handlers    map[shared.EventType][]Registration
	middlewares []Middleware
	retrier     retry.Policy
	deadLetters *DeadLetterQueue
	timeout     time.Duration
	log         *logger.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// Registration describes one named handler.
type Registration struct {
	Name    string
	Handler shared.EventHandler
	Timeout time.Duration
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	EventBus shared.EventSubscriber

	// MaxAttempts per handler, including the first call.
	MaxAttempts  int
	InitialDelay time.Duration

	DeadLetterQueueSize int

	// HandlerTimeout applies when a Registration sets none.
	HandlerTimeout time.Duration

	Logger *logger.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(eventBus shared.EventSubscriber) DispatcherConfig {
	return DispatcherConfig{
		EventBus:            eventBus,
		MaxAttempts:         3,
		InitialDelay:        100 * time.Millisecond,
		DeadLetterQueueSize: 1000,
		HandlerTimeout:      10 * time.Second,
	}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := config.Logger.With(logger.Component("dispatcher"))

	d := &Dispatcher{
		eventBus:    config.EventBus,
		handlers:    make(map[shared.EventType][]Registration),
		deadLetters: NewDeadLetterQueue(config.DeadLetterQueueSize),
		timeout:     config.HandlerTimeout,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}

	// handlers opt out of retries with retry.Permanent
	d.retrier = retry.Policy{
		Attempts: config.MaxAttempts,
		Base:     config.InitialDelay,
		Cap:      5 * time.Second,
		RetryAll: true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("handler attempt failed",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", delay),
				logger.Err(err),
			)
		},
	}

	return d
}

// Register adds a named handler for an event type.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, Registration{Name: name, Handler: handler})
}

// RegisterHandler adds a handler with explicit settings.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, reg Registration) error {
	if reg.Handler == nil {
		return errNilHandler
	}
	if reg.Name == "" {
		reg.Name = string(eventType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if reg.Timeout <= 0 {
		reg.Timeout = d.timeout
	}
	d.handlers[eventType] = append(d.handlers[eventType], reg)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds middleware to the dispatcher. The first added runs outermost.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// RecoveryMiddleware turns handler panics into errors.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.String("event_type", string(event.EventType())),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = retry.Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs handler outcome and latency.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)

			fields := []logger.Field{
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
			}
			if err != nil {
				log.Error("handler failed", append(fields, logger.Err(err))...)
			} else {
				log.Debug("handler completed", fields...)
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Start() error {
	return d.eventBus.SubscribeAll(d.Dispatch)
}

// Dispatch runs every handler registered for the event type in order.
// It returns the last failure after all handlers ran.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	var lastErr error
	for _, reg := range handlers {
		if err := d.execute(event, reg, middlewares); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (d *Dispatcher) execute(event shared.Event, reg Registration, middlewares []Middleware) error {
	handler := reg.Handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	attempts := 0
	err := d.retrier.Do(d.ctx, func(ctx context.Context) error {
		attempts++
		return withTimeout(ctx, handler, event, reg.Timeout)
	})
	if err == nil {
		return nil
	}

	d.deadLetters.Add(DeadLetterEntry{
		Event:       event,
		HandlerName: reg.Name,
		Error:       err,
		Attempts:    attempts,
		FailedAt:    time.Now(),
	})
	return fmt.Errorf("handler %s failed after %d attempts: %w", reg.Name, attempts, err)
}

func withTimeout(ctx context.Context, handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- handler(event) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels pending retries.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.log.Info("dispatcher stopped")
}

// DeadLetters exposes events whose handlers exhausted their attempts.
func (d *Dispatcher) DeadLetters() *DeadLetterQueue {
	return d.deadLetters
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry represents a failed event.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed events.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, dropping the oldest at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}
