package push

import (
	"context"
	"encoding/json"

	"chokewatch/internal/notify"
)

// Display shows notifications on behalf of the worker.
type Display interface {
	ShowNotification(ctx context.Context, title string, options json.RawMessage) (notify.Handle, error)
}

// Registration is the Display backed by a desktop notifier.
type Registration struct {
	notifier notify.Notifier
}

// NewRegistration returns a Display that renders through n.
func NewRegistration(n notify.Notifier) *Registration {
	return &Registration{notifier: n}
}

// ShowNotification displays title with the desktop's view of options.
func (r *Registration) ShowNotification(ctx context.Context, title string, options json.RawMessage) (notify.Handle, error) {
	return r.notifier.Show(ctx, title, notify.ParseOptions(options))
}
