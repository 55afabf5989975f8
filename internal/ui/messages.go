// Package ui provides the terminal settings screen for chokewatch.
// This file defines message types for async I/O operations using the Bubble Tea
// command pattern. All store operations return these messages to keep the
// event loop non-blocking.
package ui

import (
	"time"

	"chokewatch/internal/quiet"
	"chokewatch/internal/worker"
)

// prefsLoadedMsg is sent when the stored quiet hours have been read.
type prefsLoadedMsg struct {
	window    quiet.Window
	updatedAt time.Time
	ok        bool
}

// prefsSavedMsg is sent when a save completes.
type prefsSavedMsg struct {
	window quiet.Window
	err    error
}

// prefsClearedMsg is sent when the stored window has been removed.
type prefsClearedMsg struct {
	err error
}

// controllerLoadedMsg is sent when the worker registry has been read.
type controllerLoadedMsg struct {
	instance worker.Instance
	ok       bool
	err      error
}

// clearStatusMsg hides the status line once it expires.
type clearStatusMsg struct {
	until time.Time
}
