// Package task runs ingestion and conversation work off the interactive
// thread, one operation at a time.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ragchat/internal/domain"
)

// Op names the kind of background operation.
type Op string

const (
	OpIngest   Op = "ingest"
	OpConverse Op = "converse"
)

// EventKind tells a busy notification from a completion.
type EventKind int

const (
	Busy EventKind = iota
	Done
)

func (k EventKind) String() string {
	if k == Busy {
		return "busy"
	}
	return "done"
}

// Event is delivered once when an operation starts and once when it ends.
// Value and Err are only set on Done.
type Event struct {
	ID    uint64
	Kind  EventKind
	Op    Op
	Value any
	Err   error
}

// Func is the body of an operation.
type Func func(ctx context.Context) (any, error)

// EventBuffer is the capacity of the events channel.
const EventBuffer = 32

// Runner enforces the single outstanding operation rule.
type Runner struct {
	mu      sync.Mutex
	current Op
	nextID  uint64
	timeout time.Duration
	events  chan Event
	muted   bool
	log     *slog.Logger
}

// NewRunner returns a Runner whose operations run under timeout. A zero
// timeout means no deadline.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		timeout: timeout,
		events:  make(chan Event, EventBuffer),
		log:     logger,
	}
}

// Events returns the notification stream, in operation start order.
// Events are dropped rather than blocking the worker when nobody drains it.
func (r *Runner) Events() <-chan Event { return r.events }

// Mute stops publishing events. Callers that wait on handles instead of
// draining Events use it.
func (r *Runner) Mute() {
	r.mu.Lock()
	r.muted = true
	r.mu.Unlock()
}

// IsBusy reports whether an operation is outstanding.
func (r *Runner) IsBusy() bool { return r.Current() != "" }

// Current returns the outstanding operation, or "" when idle.
func (r *Runner) Current() Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run starts fn in the background. It fails with ErrBusy, without starting
// anything, if another operation is outstanding.
func (r *Runner) Run(op Op, fn Func) (*Handle, error) {
	r.mu.Lock()
	if r.current != "" {
		running := r.current
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is still running", domain.ErrBusy, running)
	}
	r.current = op
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	h := &Handle{id: id, op: op, done: make(chan struct{})}
	r.publish(Event{ID: id, Kind: Busy, Op: op})
	go r.execute(h, fn)
	return h, nil
}

func (r *Runner) execute(h *Handle, fn Func) {
	started := time.Now()
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	h.value, h.err = call(ctx, h.op, fn)

	attrs := []any{slog.String("op", string(h.op)), slog.Uint64("id", h.id), slog.Duration("elapsed", time.Since(started))}
	if h.err != nil {
		r.log.Error("operation failed", append(attrs, slog.String("error", h.err.Error()))...)
	} else {
		r.log.Info("operation finished", attrs...)
	}

	r.mu.Lock()
	r.current = ""
	r.mu.Unlock()
	r.publish(Event{ID: h.id, Kind: Done, Op: h.op, Value: h.value, Err: h.err})
	close(h.done)
}

func call(ctx context.Context, op Op, fn Func) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			value, err = nil, fmt.Errorf("%s operation panicked: %v", op, p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) publish(ev Event) {
	r.mu.Lock()
	muted := r.muted
	r.mu.Unlock()
	if muted {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warn("event dropped, nobody is listening",
			slog.String("op", string(ev.Op)), slog.String("kind", ev.Kind.String()))
	}
}

// Handle tracks one started operation.
type Handle struct {
	id    uint64
	op    Op
	done  chan struct{}
	value any
	err   error
}

// ID matches the ID of the operation's events.
func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) Op() Op { return h.op }

// Done is closed once the outcome is available and the runner is idle.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the operation completes and returns its outcome.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.value, h.err
}
