// Package worker is the background half of chokewatch: it intercepts push
// events, applies the user's quiet hours and manages its own lifecycle
// against other instances of itself.
package worker

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"chokewatch/internal/push"
	"chokewatch/internal/quiet"

	log "github.com/sirupsen/logrus"
)

// DefaultLookupTimeout bounds the preference read for one notification.
const DefaultLookupTimeout = 2 * time.Second

// PreferenceReader is the read side of the preference store.
type PreferenceReader interface {
	Get(ctx context.Context) (quiet.Window, bool)
}

// Decision is the outcome for one push event.
type Decision int

const (
	DecisionShow Decision = iota
	DecisionSuppress
	DecisionIgnore
)

func (d Decision) String() string {
	switch d {
	case DecisionShow:
		return "show"
	case DecisionSuppress:
		return "suppress"
	case DecisionIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Counts is a snapshot of the interceptor's decisions.
type Counts struct {
	Shown      int64 `json:"shown"`
	Suppressed int64 `json:"suppressed"`
	Ignored    int64 `json:"ignored"`
}

// Interceptor takes over display of every push notification and shows it
// unless the current local hour falls inside the stored quiet window.
type Interceptor struct {
	prefs   PreferenceReader
	display push.Display
	now     func() time.Time
	timeout time.Duration
	log     log.FieldLogger

	shown      atomic.Int64
	suppressed atomic.Int64
	ignored    atomic.Int64
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithClock sets the source of the current instant. Its location decides
// the hour that is checked against the window.
func WithClock(now func() time.Time) InterceptorOption {
	return func(i *Interceptor) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLookupTimeout bounds the preference read. Non-positive values keep
// the default.
func WithLookupTimeout(d time.Duration) InterceptorOption {
	return func(i *Interceptor) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithLogger sets the decision logger.
func WithLogger(l log.FieldLogger) InterceptorOption {
	return func(i *Interceptor) {
		if l != nil {
			i.log = l
		}
	}
}

// NewInterceptor builds an interceptor reading prefs and showing through
// display.
func NewInterceptor(prefs PreferenceReader, display push.Display, opts ...InterceptorOption) *Interceptor {
	discard := log.New()
	discard.SetOutput(io.Discard)

	i := &Interceptor{
		prefs:   prefs,
		display: display,
		now:     time.Now,
		timeout: DefaultLookupTimeout,
		log:     discard,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HandleNotification suppresses the platform's own display before doing
// anything else, then decides in a task that keeps the event alive.
func (i *Interceptor) HandleNotification(ev *push.Event) {
	ev.PreventDefault()
	ev.WaitUntil(func(ctx context.Context) error {
		_, err := i.Decide(ctx, ev)
		return err
	})
}

// Decide runs the quiet-hours decision for ev and carries it out. The
// returned error only reports a failed display; the decision itself never
// fails.
func (i *Interceptor) Decide(ctx context.Context, ev *push.Event) (Decision, error) {
	entry := i.log.WithField("event", ev.ID)

	n := ev.Notification
	if n == nil {
		i.ignored.Add(1)
		entry.WithField("decision", DecisionIgnore).Debug("push event without notification")
		return DecisionIgnore, nil
	}

	w, ok := i.lookup(ctx, entry)
	if ok {
		hour := quiet.HourOf(i.now())
		if quiet.IsQuiet(hour, w) {
			_ = n.Close()
			i.suppressed.Add(1)
			entry.WithFields(log.Fields{
				"decision": DecisionSuppress,
				"hour":     hour,
				"window":   w.String(),
			}).Info("notification suppressed")
			return DecisionSuppress, nil
		}
		entry = entry.WithFields(log.Fields{"hour": hour, "window": w.String()})
	}

	i.shown.Add(1)
	entry = entry.WithField("decision", DecisionShow)
	if _, err := i.display.ShowNotification(ctx, n.Title, n.Options); err != nil {
		entry.WithError(err).Warn("notification display failed")
		return DecisionShow, fmt.Errorf("show notification: %w", err)
	}
	entry.Info("notification shown")
	return DecisionShow, nil
}

// Counts returns the decisions made so far.
func (i *Interceptor) Counts() Counts {
	return Counts{
		Shown:      i.shown.Load(),
		Suppressed: i.suppressed.Load(),
		Ignored:    i.ignored.Load(),
	}
}

// lookup reads the window, giving up after the lookup timeout. A read that
// is still running when the timeout fires is abandoned.
func (i *Interceptor) lookup(parent context.Context, entry log.FieldLogger) (quiet.Window, bool) {
	ctx, cancel := context.WithTimeout(parent, i.timeout)
	defer cancel()

	type result struct {
		w  quiet.Window
		ok bool
	}
	ch := make(chan result, 1)
	go func() {
		w, ok := i.prefs.Get(ctx)
		ch <- result{w, ok}
	}()

	select {
	case r := <-ch:
		return r.w, r.ok
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			entry.WithError(err).Warn("quiet hours lookup cancelled; showing")
		} else {
			entry.WithField("timeout", i.timeout).Warn("quiet hours lookup timed out; showing")
		}
		return quiet.Window{}, false
	}
}
