//go:build darwin

// Package notify provides desktop notification support.
// This file implements macOS notifications using osascript.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// darwinNotifier implements notifications for macOS using osascript.
type darwinNotifier struct {
	sound bool
}

// newPlatformNotifier creates the macOS notifier.
func newPlatformNotifier(appName string, sound bool) Notifier {
	return &darwinNotifier{sound: sound}
}

// IsSupported returns true if osascript is available.
func (n *darwinNotifier) IsSupported() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// Show sends a macOS notification using osascript. Notification Center
// offers no way to retract the notification, so the handle is inert.
func (n *darwinNotifier) Show(ctx context.Context, title string, opts Options) (Handle, error) {
	// Escape quotes in title and message
	title = escapeAppleScript(title)
	message := escapeAppleScript(opts.Body)

	var script string
	if n.sound && !opts.Silent {
		script = fmt.Sprintf(`display notification "%s" with title "%s" sound name "default"`, message, title)
	} else {
		script = fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	}

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("osascript failed: %w", err)
	}

	return noopHandle{}, nil
}

// escapeAppleScript escapes special characters for AppleScript strings.
func escapeAppleScript(s string) string {
	// Replace backslashes and quotes
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
