package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// ErrNotActive is returned by Dispatch while no active worker controls the
// dispatcher.
var ErrNotActive = errors.New("no active worker")

// Handler receives push events. HandleNotification runs synchronously; any
// work that may block belongs in a WaitUntil task.
type Handler interface {
	HandleNotification(ev *Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev *Event)

// HandleNotification calls f(ev).
func (f HandlerFunc) HandleNotification(ev *Event) { f(ev) }

// Gate reports whether events may be dispatched.
type Gate interface {
	Active() bool
}

// Stats counts dispatcher activity.
type Stats struct {
	Dispatched    int64 `json:"dispatched"`
	AutoDisplayed int64 `json:"auto_displayed"`
	Failed        int64 `json:"failed"`
	InFlight      int64 `json:"in_flight"`
}

// Dispatcher delivers events to a handler, one independent pass per event.
type Dispatcher struct {
	handler Handler
	display Display
	gate    Gate
	log     log.FieldLogger

	mu       sync.RWMutex
	draining bool
	inflight sync.WaitGroup

	dispatched    atomic.Int64
	autoDisplayed atomic.Int64
	failed        atomic.Int64
	pending       atomic.Int64
}

// NewDispatcher builds a dispatcher. gate may be nil, in which case events
// are always accepted until Drain is called.
func NewDispatcher(handler Handler, display Display, gate Gate, logger log.FieldLogger) *Dispatcher {
	if logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Dispatcher{
		handler: handler,
		display: display,
		gate:    gate,
		log:     logger,
	}
}

// Dispatch runs one event to completion: the handler's synchronous call,
// the default display when the handler did not prevent it, then every task
// the handler registered. It returns ErrNotActive without touching the
// event when the dispatcher is not accepting events.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	if !d.enter() {
		return ErrNotActive
	}
	defer d.leave()

	d.dispatched.Add(1)
	ev.bind(ctx)

	d.handler.HandleNotification(ev)

	var displayErr error
	if !ev.DefaultPrevented() && ev.Notification != nil {
		d.autoDisplayed.Add(1)
		h, err := d.display.ShowNotification(ctx, ev.Notification.Title, ev.Notification.Options)
		if err != nil {
			displayErr = fmt.Errorf("default display: %w", err)
		} else {
			ev.Notification.attach(h)
		}
	}

	err := errors.Join(displayErr, ev.settle())
	if err != nil {
		d.failed.Add(1)
		d.log.WithError(err).WithField("event", ev.ID).Warn("push event failed")
	}
	return err
}

// Drain stops accepting events and waits for in-flight events to settle or
// for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %d events still in flight: %w", d.pending.Load(), ctx.Err())
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:    d.dispatched.Load(),
		AutoDisplayed: d.autoDisplayed.Load(),
		Failed:        d.failed.Load(),
		InFlight:      d.pending.Load(),
	}
}

// Accepting reports whether Dispatch would currently accept an event.
func (d *Dispatcher) Accepting() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.acceptingLocked()
}

func (d *Dispatcher) acceptingLocked() bool {
	if d.draining {
		return false
	}
	return d.gate == nil || d.gate.Active()
}

func (d *Dispatcher) enter() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.acceptingLocked() {
		return false
	}
	d.inflight.Add(1)
	d.pending.Add(1)
	return true
}

func (d *Dispatcher) leave() {
	d.pending.Add(-1)
	d.inflight.Done()
}
