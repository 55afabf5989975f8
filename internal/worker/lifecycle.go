package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"chokewatch/internal/cache"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// State is a worker lifecycle phase. Phases only move forward.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
)

var stateNames = [...]string{"installing", "installed", "activating", "active"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown worker state %q", b)
}

// LifecycleOptions configures a Lifecycle.
type LifecycleOptions struct {
	Version     string
	Registry    *Registry
	Purgers     []cache.Purger
	PurgeCaches bool
	Logger      log.FieldLogger
	Now         func() time.Time
}

// Lifecycle takes one worker instance from install to control of push
// handling. A new instance never waits for the one it replaces.
type Lifecycle struct {
	id       string
	version  string
	registry *Registry
	purgers  []cache.Purger
	purge    bool
	log      log.FieldLogger
	now      func() time.Time

	mu         sync.Mutex
	state      atomic.Int32
	superseded atomic.Bool
	installed  time.Time
	previous   string
}

// NewLifecycle returns a lifecycle in StateInstalling with a fresh
// instance id.
func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	logger := opts.Logger
	if logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	id := uuid.NewString()
	return &Lifecycle{
		id:       id,
		version:  opts.Version,
		registry: opts.Registry,
		purgers:  opts.Purgers,
		purge:    opts.PurgeCaches,
		log:      logger.WithFields(log.Fields{"worker": id, "version": opts.Version}),
		now:      now,
	}
}

func (l *Lifecycle) ID() string      { return l.id }
func (l *Lifecycle) Version() string { return l.version }

// State returns the current phase.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Active reports whether this instance controls push handling.
func (l *Lifecycle) Active() bool {
	return l.State() == StateActive && !l.superseded.Load()
}

// Superseded reports whether another instance has taken control.
func (l *Lifecycle) Superseded() bool {
	return l.superseded.Load()
}

// Install records the instance and moves to Installed without waiting for
// any running instance to exit.
func (l *Lifecycle) Install(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.expect(StateInstalling); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.installed = l.now()
	if _, err := l.registry.Update(func(s *Snapshot) {
		s.Instances[l.id] = l.instance(StateInstalled, nil)
	}); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	l.state.Store(int32(StateInstalled))
	l.log.Info("installed; skipping wait")
	return nil
}

// Activate purges stale caches, claims control in the registry and moves to
// Active. Cache purge failures are logged and do not block activation.
func (l *Lifecycle) Activate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.expect(StateInstalled); err != nil {
		return err
	}
	l.state.Store(int32(StateActivating))

	if l.purge && len(l.purgers) > 0 {
		n, err := cache.PurgeAll(ctx, l.purgers...)
		entry := l.log.WithField("removed", n)
		if err != nil {
			entry.WithError(err).Warn("cache purge incomplete")
		} else {
			entry.Info("caches purged")
		}
	}

	activated := l.now()
	if _, err := l.registry.Update(func(s *Snapshot) {
		// The previous controller keeps its entry until it retires itself.
		// Entries of processes that are gone are dropped.
		for id, inst := range s.Instances {
			if id != l.id && id != s.Controller && !processAlive(inst.PID) {
				delete(s.Instances, id)
			}
		}
		if s.Controller != l.id {
			l.previous = s.Controller
		}
		s.Instances[l.id] = l.instance(StateActive, &activated)
		s.Controller = l.id
	}); err != nil {
		return fmt.Errorf("claim clients: %w", err)
	}

	l.state.Store(int32(StateActive))
	entry := l.log
	if l.previous != "" {
		entry = entry.WithField("previous", l.previous)
	}
	entry.Info("active; claimed clients")
	return nil
}

// Start is Install followed by Activate.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.Install(ctx); err != nil {
		return err
	}
	return l.Activate(ctx)
}

// WatchSupersession blocks until ctx ends or another instance takes
// control, calling onSuperseded once in the latter case.
func (l *Lifecycle) WatchSupersession(ctx context.Context, onSuperseded func(Instance)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return l.registry.Watch(ctx, l.log, func(s Snapshot) {
		if l.State() != StateActive || s.Controller == "" || s.Controller == l.id {
			return
		}
		if !l.superseded.CompareAndSwap(false, true) {
			return
		}
		next, _ := s.ControllerInstance()
		l.log.WithFields(log.Fields{
			"successor":         next.ID,
			"successor_version": next.Version,
		}).Info("superseded by a newer worker")
		if onSuperseded != nil {
			onSuperseded(next)
		}
		cancel()
	})
}

// Retire removes this instance from the registry on shutdown. If it still
// holds control, control goes back to the instance it took over from when
// that one is still registered, and to nobody otherwise.
func (l *Lifecycle) Retire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.registry.Update(func(s *Snapshot) {
		delete(s.Instances, l.id)
		if s.Controller != l.id {
			return
		}
		s.Controller = ""
		if _, ok := s.Instances[l.previous]; ok && l.previous != "" {
			s.Controller = l.previous
			l.log.WithField("controller", l.previous).Info("handing control back")
		}
	})
	return err
}

func (l *Lifecycle) expect(want State) error {
	if got := l.State(); got != want {
		return fmt.Errorf("worker is %s, want %s", got, want)
	}
	return nil
}

func (l *Lifecycle) instance(state State, activated *time.Time) Instance {
	return Instance{
		ID:          l.id,
		Version:     l.version,
		PID:         os.Getpid(),
		State:       state,
		InstalledAt: l.installed,
		ActivatedAt: activated,
	}
}

// processAlive reports whether pid names a running process. Windows offers
// no signal-0 check, so any process that can be opened counts as alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return p.Signal(syscall.Signal(0)) == nil
}
