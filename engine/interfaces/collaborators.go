// Package interfaces declares the narrow ports the engine consumes from the
// surrounding platform. All of them are external collaborators; the engine
// never depends on their implementations.
package interfaces

import "context"

// Notifier delivers a user-facing event. Fire-and-forget: the engine logs
// delivery failures and never propagates them.
type Notifier interface {
	Notify(ctx context.Context, userID string, eventType string, payload map[string]any) error
}

// SettlementRecorder upserts an opaque external settlement reference against
// an engine entity. Idempotent: recording the same reference twice is a no-op.
type SettlementRecorder interface {
	RecordReference(ctx context.Context, entityID int64, referenceID string) error
}

type UserSummary struct {
	DisplayName string
	Email       string
}

// UserDirectory resolves display data for presentation enrichment. Never
// consulted for authorization decisions.
type UserDirectory interface {
	GetUserSummary(ctx context.Context, userID string) (UserSummary, error)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, map[string]any) error { return nil }
