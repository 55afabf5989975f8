//go:build !darwin && !linux

// Package notify provides desktop notification support.
// This file provides a no-op implementation for unsupported platforms.
package notify

import "context"

// stubNotifier is a no-op notifier for unsupported platforms.
type stubNotifier struct{}

// newPlatformNotifier creates a stub notifier.
func newPlatformNotifier(appName string, sound bool) Notifier {
	return &stubNotifier{}
}

// Show is a no-op on unsupported platforms.
func (n *stubNotifier) Show(ctx context.Context, title string, opts Options) (Handle, error) {
	return noopHandle{}, nil
}

// IsSupported returns false for unsupported platforms.
func (n *stubNotifier) IsSupported() bool {
	return false
}
