// Package ui provides the terminal settings screen for chokewatch.
// This file contains tea.Cmd factories that wrap store and registry
// operations so they run off the Bubble Tea event loop. Each command returns
// a corresponding message type defined in messages.go.
package ui

import (
	"context"
	"time"

	"chokewatch/internal/quiet"
	"chokewatch/internal/worker"

	tea "github.com/charmbracelet/bubbletea"
)

// opTimeout bounds a single store operation started from the screen.
const opTimeout = 5 * time.Second

// PreferenceStore is the owner side of the preference store.
type PreferenceStore interface {
	Stat(ctx context.Context) (quiet.Window, time.Time, bool)
	Put(ctx context.Context, w quiet.Window) error
	Clear(ctx context.Context) error
}

// ControllerSource reports which worker currently handles pushes.
type ControllerSource interface {
	Load() (worker.Snapshot, error)
}

func loadPrefsCmd(store PreferenceStore) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		w, at, ok := store.Stat(ctx)
		return prefsLoadedMsg{window: w, updatedAt: at, ok: ok}
	}
}

func savePrefsCmd(store PreferenceStore, w quiet.Window) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return prefsSavedMsg{window: w, err: store.Put(ctx, w)}
	}
}

func clearPrefsCmd(store PreferenceStore) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return prefsClearedMsg{err: store.Clear(ctx)}
	}
}

func loadControllerCmd(src ControllerSource) tea.Cmd {
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		snap, err := src.Load()
		if err != nil {
			return controllerLoadedMsg{err: err}
		}
		inst, ok := snap.ControllerInstance()
		return controllerLoadedMsg{instance: inst, ok: ok}
	}
}

func clearStatusAfter(d time.Duration, until time.Time) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{until: until}
	})
}
