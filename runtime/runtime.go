// Copyright (c) 2025 BVK Chaitanya

// Package runtime bundles the external collaborators a dipper needs to act
// on its decisions.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/bvk/buydips/exchange"
	"github.com/bvkgo/kv"
)

// Messenger sends operator notifications. Implementations must treat
// delivery failures as non-fatal.
type Messenger interface {
	SendMessage(ctx context.Context, at time.Time, text string) error
}

type Runtime struct {
	Database kv.Database

	Exchange exchange.Exchange

	// Messenger may be nil when notifications are not configured.
	Messenger Messenger
}

// Notify sends a notification and swallows delivery failures with a log
// message. A failed alert must never block trading decisions.
func (rt *Runtime) Notify(ctx context.Context, at time.Time, text string) {
	if rt.Messenger == nil {
		return
	}
	if err := rt.Messenger.SendMessage(ctx, at, text); err != nil {
		slog.Warn("could not send notification (ignored)", "text", text, "err", err)
	}
}
