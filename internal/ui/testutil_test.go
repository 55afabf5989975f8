package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chokewatch/internal/config"
	"chokewatch/internal/quiet"
	"chokewatch/internal/worker"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// setupTest prepares the test environment for deterministic rendering.
func setupTest(t *testing.T) {
	t.Helper()
	// Use ASCII profile to disable all color codes in output
	lipgloss.SetColorProfile(termenv.Ascii)
}

// createTestStyles creates a default Styles instance for testing.
func createTestStyles() *Styles {
	return NewStylesFromTheme(&config.ThemeConfig{})
}

// memStore is an in-memory PreferenceStore.
type memStore struct {
	mu      sync.Mutex
	w       *quiet.Window
	at      time.Time
	putErr  error
	puts    int
	cleared int
}

func (m *memStore) Stat(ctx context.Context) (quiet.Window, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.w == nil {
		return quiet.Window{}, time.Time{}, false
	}
	return *m.w, m.at, true
}

func (m *memStore) Put(ctx context.Context, w quiet.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	if err := w.Validate(); err != nil {
		return err
	}
	m.w = &w
	m.at = time.Now()
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	m.w = nil
	return nil
}

type fakeRegistry struct {
	snap worker.Snapshot
	err  error
}

func (f fakeRegistry) Load() (worker.Snapshot, error) {
	return f.snap, f.err
}

var errDiskFull = errors.New("disk full")

// keyMsg builds a key press for s ("enter", "tab", "j", ...).
func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// newTestApp builds an App whose status line never schedules ticks.
func newTestApp(store PreferenceStore, registry ControllerSource) *App {
	app := NewApp(store, registry, createTestStyles(), nil)
	app.statusTimer = func(time.Duration, time.Time) tea.Cmd { return nil }
	return app
}

// run executes cmd and feeds the resulting message back into app, the way
// the Bubble Tea runtime would. It reports whether the program would quit.
func run(t *testing.T, app *App, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	switch msg := cmd().(type) {
	case nil:
		return false
	case tea.QuitMsg:
		return true
	case tea.BatchMsg:
		quit := false
		for _, c := range msg {
			quit = run(t, app, c) || quit
		}
		return quit
	default:
		_, next := app.Update(msg)
		return run(t, app, next)
	}
}

// press sends keys to app and runs the commands they produce.
func press(t *testing.T, app *App, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, cmd := app.Update(keyMsg(k))
		run(t, app, cmd)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
