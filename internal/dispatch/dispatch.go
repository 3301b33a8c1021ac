// Package dispatch serializes every core operation onto one goroutine.
//
// Host notifications arrive as events; API requests and timers arrive as
// tasks. Both are consumed by Run in arrival order, so the render pipeline,
// sidebar manager and macro processor never run concurrently.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// Kind classifies a host notification.
type Kind int

const (
	// MessageUpdated is sent while a message is being written (streaming).
	MessageUpdated Kind = iota
	// MessageFinished is sent once a message is complete.
	MessageFinished
	// Refresh asks for every visible message to be re-rendered.
	Refresh
)

func (k Kind) String() string {
	switch k {
	case MessageUpdated:
		return "message_updated"
	case MessageFinished:
		return "message_finished"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Event is a "message changed" notification.
type Event struct {
	Kind      Kind
	MessageID int
}

// Handler consumes events on the dispatcher goroutine.
type Handler interface {
	HandleEvent(Event)
}

// Scheduler runs fn after a delay, on the same serialized queue as everything else.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// ErrStopped is returned when the dispatcher is no longer running.
var ErrStopped = errors.New("dispatcher stopped")

type task struct {
	fn   func()
	done chan struct{}
}

// Dispatcher is the single consumer of events and tasks.
type Dispatcher struct {
	events  chan Event
	tasks   chan task
	stopped chan struct{}
}

// Compile-time interface check
var _ Scheduler = (*Dispatcher)(nil)

// New creates a dispatcher with the given queue depth.
func New(buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		events:  make(chan Event, buffer),
		tasks:   make(chan task, buffer),
		stopped: make(chan struct{}),
	}
}

// Run consumes the queues until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, h Handler) {
	slog.Info("dispatcher started", "component", "dispatch")
	defer close(d.stopped)

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped",
				"component", "dispatch",
				"reason", "context_cancelled",
			)
			return
		case ev := <-d.events:
			d.safely(func() { h.HandleEvent(ev) }, "event", ev.Kind.String())
		case t := <-d.tasks:
			d.safely(t.fn, "task", "")
			if t.done != nil {
				close(t.done)
			}
		}
	}
}

// safely keeps a panicking handler from taking the dispatcher down.
func (d *Dispatcher) safely(fn func(), what, kind string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("dispatcher recovered panic",
				"component", "dispatch",
				"source", what,
				"kind", kind,
				"error", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Publish enqueues an event, blocking until there is room or ctx ends.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	select {
	case d.events <- ev:
		return nil
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the dispatcher goroutine and waits for it to finish.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case d.tasks <- t:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post enqueues fn without waiting for it to run.
func (d *Dispatcher) Post(fn func()) {
	select {
	case d.tasks <- task{fn: fn}:
	case <-d.stopped:
	}
}

// AfterFunc schedules fn onto the queue after delay.
func (d *Dispatcher) AfterFunc(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() { d.Post(fn) })
}
