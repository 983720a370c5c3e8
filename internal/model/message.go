package model

import (
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a scheduled message. Sent and
// Cancelled are terminal; Failed is terminal once the retry budget is
// exhausted. A message never leaves a terminal status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// TargetKind says what kind of Telegram destination TargetID refers to.
type TargetKind string

const (
	TargetChannel TargetKind = "channel" // group or channel chat
	TargetThread  TargetKind = "thread"  // forum topic inside a group
	TargetDM      TargetKind = "dm"      // direct message to a user
)

func (k TargetKind) Valid() bool {
	switch k {
	case TargetChannel, TargetThread, TargetDM:
		return true
	}
	return false
}

// ScheduledMessage is one persisted send. It is created by the command
// layer with StatusPending and mutated only through status-conditional
// store updates after that.
type ScheduledMessage struct {
	ID          string
	OwnerID     string
	TargetKind  TargetKind
	TargetID    string
	TopicID     *int    // forum topic id, for thread targets
	GroupID     *string // originating group chat, informational
	Content     string
	ScheduledAt time.Time
	Status      Status
	RetryCount  int
	LastError   *string
	ExecutedAt  *time.Time
	CreatedAt   time.Time
}

// UserPreferences are per-owner settings, created lazily with defaults
// the first time an owner touches the service.
type UserPreferences struct {
	OwnerID              string
	Timezone             string
	MaxPending           int
	NotificationsEnabled bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PreferencePatch carries the fields of an explicit preference update.
// Nil fields are left unchanged.
type PreferencePatch struct {
	Timezone             *string
	MaxPending           *int
	NotificationsEnabled *bool
}

// Outcome is the result recorded for one delivery attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRetrying Outcome = "retrying"
	OutcomeFailed   Outcome = "failed"
)

// ExecutionLog is an append-only audit row, one per delivery attempt.
// Rows reference their message but are never deleted with it.
type ExecutionLog struct {
	ID             string
	MessageID      string
	OwnerID        string
	AttemptTime    time.Time
	Outcome        Outcome
	ErrorDetail    *string
	TargetKind     TargetKind
	TargetID       string
	ContentPreview string
}

const (
	// PreviewMax bounds the content preview stored on audit rows.
	PreviewMax = 200
	// ErrorDetailMax bounds stored error text.
	ErrorDetailMax = 2000
)

// Preview truncates s to at most max runes for audit rows and
// notifications.
func Preview(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
