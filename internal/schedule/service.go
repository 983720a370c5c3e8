// Package schedule exposes the command-layer entry points: creating,
// listing, editing and cancelling scheduled messages, plus owner
// preferences. It validates requests and leaves all delivery-time
// status transitions to the engine.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"schedbot/internal/model"
	"schedbot/internal/store"
)

var (
	ErrOwnerEmpty     = errors.New("ownerId must not be empty")
	ErrContentEmpty   = errors.New("content must not be empty")
	ErrContentTooLong = errors.New("content exceeds maximum length")
	ErrTimeNotFuture  = errors.New("scheduled time must be in the future")
	ErrInvalidTarget  = errors.New("invalid target")
	ErrPendingLimit   = errors.New("pending message limit reached")
	ErrNotOwner       = errors.New("message belongs to another owner")
	ErrNotPending     = errors.New("message is not pending")
	ErrNothingToEdit  = errors.New("nothing to edit")
	ErrInvalidPrefs   = errors.New("invalid preferences")
	ErrNotFound       = store.ErrNotFound
)

type Service struct {
	messages   store.MessageStore
	prefs      store.PreferenceStore
	logs       store.ExecutionLogStore
	contentMax int
	now        func() time.Time
}

func NewService(messages store.MessageStore, prefs store.PreferenceStore, logs store.ExecutionLogStore, contentMax int) *Service {
	if contentMax <= 0 {
		contentMax = 4096
	}
	return &Service{
		messages:   messages,
		prefs:      prefs,
		logs:       logs,
		contentMax: contentMax,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	OwnerID     string
	TargetKind  model.TargetKind
	TargetID    string
	TopicID     *int
	GroupID     *string
	Content     string
	ScheduledAt time.Time
}

// Create validates the request, enforces the owner's pending bound and
// inserts a new pending message. The bound is checked at creation time
// only; lowering it later never cancels existing messages.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.ScheduledMessage, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return model.ScheduledMessage{}, ErrOwnerEmpty
	}
	if !req.TargetKind.Valid() || strings.TrimSpace(req.TargetID) == "" {
		return model.ScheduledMessage{}, ErrInvalidTarget
	}
	if err := s.validateContent(req.Content); err != nil {
		return model.ScheduledMessage{}, err
	}
	if err := s.validateFuture(req.ScheduledAt); err != nil {
		return model.ScheduledMessage{}, err
	}

	prefs, err := s.prefs.GetOrCreate(ctx, req.OwnerID)
	if err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("load preferences: %w", err)
	}
	pending, err := s.messages.CountPending(ctx, req.OwnerID)
	if err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("count pending: %w", err)
	}
	if pending >= prefs.MaxPending {
		return model.ScheduledMessage{}, fmt.Errorf("%w (%d)", ErrPendingLimit, prefs.MaxPending)
	}

	msg := model.ScheduledMessage{
		OwnerID:     req.OwnerID,
		TargetKind:  req.TargetKind,
		TargetID:    req.TargetID,
		TopicID:     req.TopicID,
		GroupID:     req.GroupID,
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt.UTC(),
		Status:      model.StatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		return model.ScheduledMessage{}, err
	}
	return msg, nil
}

// Cancel moves a pending message to cancelled. Cancelling a message
// that already reached a terminal status fails with ErrNotPending and
// leaves it untouched.
func (s *Service) Cancel(ctx context.Context, ownerID, id string) error {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.OwnerID != ownerID {
		return ErrNotOwner
	}
	if msg.Status != model.StatusPending {
		return fmt.Errorf("%w: status is %s", ErrNotPending, msg.Status)
	}

	err = s.messages.Cancel(ctx, ownerID, id)
	if errors.Is(err, store.ErrConflict) {
		// Raced a delivery or another cancel between read and update.
		return fmt.Errorf("%w: already finalized", ErrNotPending)
	}
	return err
}

type EditRequest struct {
	OwnerID     string
	ID          string
	ScheduledAt *time.Time
	Content     *string
}

// Edit mutates scheduledAt and/or content of a pending message. It
// never touches status or retryCount.
func (s *Service) Edit(ctx context.Context, req EditRequest) (model.ScheduledMessage, error) {
	if req.ScheduledAt == nil && req.Content == nil {
		return model.ScheduledMessage{}, ErrNothingToEdit
	}
	if req.ScheduledAt != nil {
		if err := s.validateFuture(*req.ScheduledAt); err != nil {
			return model.ScheduledMessage{}, err
		}
	}
	if req.Content != nil {
		if err := s.validateContent(*req.Content); err != nil {
			return model.ScheduledMessage{}, err
		}
	}

	msg, err := s.messages.GetByID(ctx, req.ID)
	if err != nil {
		return model.ScheduledMessage{}, err
	}
	if msg.OwnerID != req.OwnerID {
		return model.ScheduledMessage{}, ErrNotOwner
	}
	if msg.Status != model.StatusPending {
		return model.ScheduledMessage{}, fmt.Errorf("%w: status is %s", ErrNotPending, msg.Status)
	}

	err = s.messages.Edit(ctx, req.OwnerID, req.ID, req.ScheduledAt, req.Content)
	if errors.Is(err, store.ErrConflict) {
		return model.ScheduledMessage{}, fmt.Errorf("%w: already finalized", ErrNotPending)
	}
	if err != nil {
		return model.ScheduledMessage{}, err
	}

	return s.messages.GetByID(ctx, req.ID)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (model.ScheduledMessage, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return model.ScheduledMessage{}, err
	}
	if msg.OwnerID != ownerID {
		return model.ScheduledMessage{}, ErrNotOwner
	}
	return msg, nil
}

func (s *Service) List(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.ScheduledMessage, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("invalid status filter %q", *status)
	}
	return s.messages.ListForOwner(ctx, ownerID, status, limit, offset)
}

// Logs returns the execution history of an owner's message.
func (s *Service) Logs(ctx context.Context, ownerID, id string, limit int) ([]model.ExecutionLog, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.logs.ListForMessage(ctx, id, limit)
}

func (s *Service) Preferences(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	return s.prefs.GetOrCreate(ctx, ownerID)
}

func (s *Service) UpdatePreferences(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error) {
	if patch.MaxPending != nil && *patch.MaxPending <= 0 {
		return model.UserPreferences{}, fmt.Errorf("%w: maxPending must be > 0", ErrInvalidPrefs)
	}
	if patch.Timezone != nil {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return model.UserPreferences{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPrefs, *patch.Timezone)
		}
	}
	return s.prefs.Update(ctx, ownerID, patch)
}

func (s *Service) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > s.contentMax {
		return fmt.Errorf("%w (%d chars)", ErrContentTooLong, s.contentMax)
	}
	return nil
}

func (s *Service) validateFuture(at time.Time) error {
	if !at.UTC().After(s.now()) {
		return ErrTimeNotFuture
	}
	return nil
}
