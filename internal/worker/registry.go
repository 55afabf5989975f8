package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"chokewatch/internal/fsutil"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// RegistryFile is the registry's file name inside the data directory.
const RegistryFile = "worker.json"

// Instance is one worker process as recorded in the registry.
type Instance struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"`
	PID         int        `json:"pid"`
	State       State      `json:"state"`
	InstalledAt time.Time  `json:"installed_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// Snapshot is the registry's content. Controller names the instance that
// currently owns push handling.
type Snapshot struct {
	Controller string              `json:"controller,omitempty"`
	Instances  map[string]Instance `json:"instances"`
}

// ControllerInstance returns the controlling instance, if any.
func (s Snapshot) ControllerInstance() (Instance, bool) {
	if s.Controller == "" {
		return Instance{}, false
	}
	inst, ok := s.Instances[s.Controller]
	return inst, ok
}

// Sorted returns the instances ordered by install time.
func (s Snapshot) Sorted() []Instance {
	out := make([]Instance, 0, len(s.Instances))
	for _, inst := range s.Instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InstalledAt.Before(out[j].InstalledAt)
	})
	return out
}

// Registry is the file through which worker instances learn about each
// other and settings surfaces learn which version is in control.
type Registry struct {
	path string
	mu   sync.Mutex
}

// RegistryPath returns the registry location inside dataDir.
func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, RegistryFile)
}

// NewRegistry returns the registry stored at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the registry. A missing file is an empty registry.
func (r *Registry) Load() (Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{Instances: map[string]Instance{}}, nil
		}
		return Snapshot{}, fmt.Errorf("read registry: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	if s.Instances == nil {
		s.Instances = map[string]Instance{}
	}
	return s, nil
}

// Update applies fn to the current registry and writes the result back
// atomically. Writers in other processes are not locked out; the last write
// wins, which matches the newest worker taking control.
func (r *Registry) Update(fn func(*Snapshot)) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.Load()
	if err != nil {
		// A corrupt registry is kept as worker.json.bak and rebuilt.
		fsutil.BestEffortBackup(r.path, 0o600)
		s = Snapshot{Instances: map[string]Instance{}}
	}
	fn(&s)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return Snapshot{}, fmt.Errorf("create registry dir: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return Snapshot{}, fmt.Errorf("write registry: %w", err)
	}
	return s, nil
}

// Watch calls fn with the current content and then with the new content
// every time the registry file changes, until ctx ends. The directory is
// watched because atomic writes replace the file.
func (r *Registry) Watch(ctx context.Context, logger log.FieldLogger, fn func(Snapshot)) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// A change that landed before the watch started is reported once.
	if s, err := r.Load(); err == nil {
		fn(s)
	}

	name := filepath.Base(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			s, err := r.Load()
			if err != nil {
				if logger != nil {
					logger.WithError(err).Debug("registry changed but could not be read")
				}
				continue
			}
			fn(s)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.WithError(err).Warn("registry watcher error")
			}
		}
	}
}
