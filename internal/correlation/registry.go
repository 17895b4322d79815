// Package correlation tracks in-flight request/reply exchanges by correlation id.
//
// Every entry is resolved exactly once: by a reply, by its deadline passing, by the
// waiter giving up, or by Shutdown. Later attempts are ignored.
package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTimeout   = errors.New("correlation: deadline exceeded")
	ErrShutdown  = errors.New("correlation: registry shut down")
	ErrCancelled = errors.New("correlation: request cancelled")
)

// Outcome labels how an entry was resolved.
type Outcome string

const (
	OutcomeReply     Outcome = "reply"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeShutdown  Outcome = "shutdown"
)

type Registry[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	closed  bool

	now     func() time.Time
	newID   func() string
	metrics *Metrics
	logger  *zap.Logger
}

type entry[T any] struct {
	id        string
	createdAt time.Time
	deadline  time.Time
	timer     *time.Timer
	pending   *Pending[T]
}

// Pending is the awaitable side of a registered entry.
type Pending[T any] struct {
	id        string
	createdAt time.Time
	deadline  time.Time
	done      chan struct{}
	value     T
	err       error
}

type Option[T any] func(*Registry[T])

func WithClock[T any](now func() time.Time) Option[T] {
	return func(r *Registry[T]) { r.now = now }
}

func WithIDGenerator[T any](newID func() string) Option[T] {
	return func(r *Registry[T]) { r.newID = newID }
}

func WithMetrics[T any](m *Metrics) Option[T] {
	return func(r *Registry[T]) { r.metrics = m }
}

func NewRegistry[T any](logger *zap.Logger, opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		entries: make(map[string]*entry[T]),
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a pending entry that expires after timeout. After Shutdown the
// returned entry is already failed with ErrShutdown.
func (r *Registry[T]) Register(timeout time.Duration) (string, *Pending[T]) {
	now := r.now()
	id := r.newID()
	p := &Pending[T]{
		id:        id,
		createdAt: now,
		deadline:  now.Add(timeout),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.err = ErrShutdown
		close(p.done)
		return id, p
	}
	e := &entry[T]{id: id, createdAt: now, deadline: p.deadline, pending: p}
	r.entries[id] = e
	// Counted before the timer can resolve the entry.
	r.metrics.pendingInc()
	e.timer = time.AfterFunc(timeout, func() { r.Expire(id) })
	r.mu.Unlock()

	return id, p
}

// Resolve completes the entry with a reply value. It returns false when the entry is
// unknown, already resolved, or past its deadline; in the last case the entry is
// expired instead.
func (r *Registry[T]) Resolve(id string, value T) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if !r.now().Before(e.deadline) {
		r.completeLocked(e, *new(T), ErrTimeout)
		r.mu.Unlock()
		r.metrics.resolved(OutcomeTimeout)
		return false
	}
	r.completeLocked(e, value, nil)
	r.mu.Unlock()

	r.metrics.resolved(OutcomeReply)
	return true
}

// Fail completes the entry with err.
func (r *Registry[T]) Fail(id string, err error) bool {
	outcome := OutcomeFailed
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		outcome = OutcomeCancelled
	}
	return r.finish(id, err, outcome)
}

// Expire completes the entry with ErrTimeout.
func (r *Registry[T]) Expire(id string) bool {
	ok := r.finish(id, ErrTimeout, OutcomeTimeout)
	if ok {
		r.logger.Debug("Correlation entry expired", zap.String("correlation_id", id))
	}
	return ok
}

func (r *Registry[T]) finish(id string, err error, outcome Outcome) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.completeLocked(e, *new(T), err)
	r.mu.Unlock()

	r.metrics.resolved(outcome)
	return true
}

// completeLocked removes e and publishes its result. r.mu must be held.
func (r *Registry[T]) completeLocked(e *entry[T], value T, err error) {
	delete(r.entries, e.id)
	e.timer.Stop()
	e.pending.value = value
	e.pending.err = err
	close(e.pending.done)
}

// Shutdown fails every pending entry with ErrShutdown and rejects new registrations.
func (r *Registry[T]) Shutdown() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry[T])
	for _, e := range entries {
		e.timer.Stop()
		e.pending.err = ErrShutdown
		close(e.pending.done)
	}
	r.mu.Unlock()

	for range entries {
		r.metrics.resolved(OutcomeShutdown)
	}
	if len(entries) > 0 {
		r.logger.Warn("Correlation registry shut down with pending requests", zap.Int("pending", len(entries)))
	}
}

// Len is the number of pending entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Contains reports whether id is still pending.
func (r *Registry[T]) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (p *Pending[T]) ID() string { return p.id }

func (p *Pending[T]) CreatedAt() time.Time { return p.createdAt }

func (p *Pending[T]) Deadline() time.Time { return p.deadline }

// Done is closed once the entry has been resolved.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Result must only be called after Done is closed.
func (p *Pending[T]) Result() (T, error) {
	return p.value, p.err
}

// Wait blocks until the entry is resolved or ctx ends. It does not resolve the entry on
// ctx cancellation; callers that give up should Fail it.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
