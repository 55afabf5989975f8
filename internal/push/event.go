// Package push adapts push-delivery events into notification decisions.
//
// Events arrive from an ingress (HTTP or Redis), are handed synchronously to
// a Handler and then kept alive until every task the handler registered with
// WaitUntil has settled. A handler that does not call PreventDefault during
// the synchronous call gets the platform's default behavior: the dispatcher
// displays the notification itself.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chokewatch/internal/notify"

	"github.com/google/uuid"
)

// Notification is the payload of a push event. Options pass through to the
// display unmodified.
type Notification struct {
	Title   string          `json:"title"`
	Options json.RawMessage `json:"options,omitempty"`

	mu     sync.Mutex
	handle notify.Handle
	closed bool
}

// attach records a handle the platform created for this notification. A
// notification closed before the handle arrived closes the handle at once.
func (n *Notification) attach(h notify.Handle) {
	if h == nil {
		return
	}
	n.mu.Lock()
	closed := n.closed
	if !closed {
		n.handle = h
	}
	n.mu.Unlock()
	if closed {
		_ = h.Close()
	}
}

// Close dismisses any displayed instance of the notification. It is safe
// to call when nothing was displayed and safe to call more than once.
func (n *Notification) Close() error {
	n.mu.Lock()
	h := n.handle
	n.handle = nil
	n.closed = true
	n.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Close()
}

// Event is one push delivery.
type Event struct {
	ID           string
	ReceivedAt   time.Time
	Notification *Notification

	prevented atomic.Bool

	ctx  context.Context
	mu   sync.Mutex
	wg   sync.WaitGroup
	errs []error
}

// NewEvent wraps a notification, which may be nil, in a fresh event.
func NewEvent(n *Notification) *Event {
	return &Event{
		ID:           uuid.NewString(),
		ReceivedAt:   time.Now(),
		Notification: n,
		ctx:          context.Background(),
	}
}

// PreventDefault stops the dispatcher from displaying the notification on
// its own. It only has effect when called before the handler returns.
func (e *Event) PreventDefault() {
	e.prevented.Store(true)
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.prevented.Load()
}

// WaitUntil extends the event's lifetime until task returns. The task starts
// immediately on its own goroutine with the event's context.
func (e *Event) WaitUntil(task func(ctx context.Context) error) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := task(ctx); err != nil {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		}
	}()
}

func (e *Event) bind(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
}

// settle blocks until every WaitUntil task returned and reports their
// combined error.
func (e *Event) settle() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}
