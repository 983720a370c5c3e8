package store

import (
	"context"
	"errors"
	"time"

	"schedbot/internal/model"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional update matched no row
	// because the expected prior status no longer holds. The caller
	// lost an optimistic-concurrency race.
	ErrConflict = errors.New("store: conflict")
)

// MessageStore is the single source of truth for scheduled messages.
// Every mutation is conditional on the message still being pending so
// that the polling loop and user-driven actions cannot clobber each
// other's terminal transitions.
type MessageStore interface {
	Create(ctx context.Context, msg *model.ScheduledMessage) error
	GetByID(ctx context.Context, id string) (model.ScheduledMessage, error)
	ListForOwner(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.ScheduledMessage, error)
	CountPending(ctx context.Context, ownerID string) (int, error)

	// DuePending returns pending messages with scheduledAt <= now,
	// most overdue first. Read-only; each poll tick re-queries fresh
	// state.
	DuePending(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time, reason string) error
	BumpRetry(ctx context.Context, id string, reason string) error
	Cancel(ctx context.Context, ownerID, id string) error
	Edit(ctx context.Context, ownerID, id string, scheduledAt *time.Time, content *string) error
}

// PreferenceStore holds per-owner settings, created lazily.
type PreferenceStore interface {
	GetOrCreate(ctx context.Context, ownerID string) (model.UserPreferences, error)
	Update(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error)
}

// ExecutionLogStore is append-only; rows are never mutated or deleted.
type ExecutionLogStore interface {
	Append(ctx context.Context, entry model.ExecutionLog) error
	ListForMessage(ctx context.Context, messageID string, limit int) ([]model.ExecutionLog, error)
}
