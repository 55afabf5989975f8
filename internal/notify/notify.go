// Package notify provides cross-platform desktop notification support.
// It uses native notification mechanisms on macOS (osascript) and Linux (notify-send).
package notify

import (
	"context"
	"encoding/json"
)

// Notifier defines the interface for showing desktop notifications.
type Notifier interface {
	// Show displays a notification and returns a handle that can close it.
	Show(ctx context.Context, title string, opts Options) (Handle, error)

	// IsSupported returns true if notifications are supported on this platform.
	IsSupported() bool
}

// Handle refers to a displayed notification.
type Handle interface {
	// Close dismisses the notification. Closing twice is harmless.
	Close() error
}

// Options is the desktop view of a push notification's display options.
// Keys the desktop cannot render are ignored.
type Options struct {
	Body   string          `json:"body,omitempty"`
	Icon   string          `json:"icon,omitempty"`
	Tag    string          `json:"tag,omitempty"`
	Silent bool            `json:"silent,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ParseOptions decodes raw push options. Options that are absent or not a
// JSON object yield the zero value so the title can still be shown.
func ParseOptions(raw json.RawMessage) Options {
	var opts Options
	if len(raw) == 0 {
		return opts
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return Options{}
	}
	return opts
}

type noopHandle struct{}

func (noopHandle) Close() error { return nil }

type noopNotifier struct{}

func (n *noopNotifier) Show(ctx context.Context, title string, opts Options) (Handle, error) {
	return noopHandle{}, nil
}

func (n *noopNotifier) IsSupported() bool {
	return false
}

// New creates a platform-specific notifier. appName labels notifications
// where the platform supports it and sound requests an audible alert for
// notifications that are not marked silent.
// Returns a no-op notifier if the platform doesn't support notifications.
func New(appName string, sound bool) Notifier {
	n := newPlatformNotifier(appName, sound)
	if n == nil || !n.IsSupported() {
		return &noopNotifier{}
	}
	return n
}
