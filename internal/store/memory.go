package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"schedbot/internal/model"
)

// MemoryStore is a map-backed implementation of all three store
// interfaces with the same conditional-update semantics as Postgres.
// It backs tests and local development without a database.
var (
	_ MessageStore      = (*MemoryStore)(nil)
	_ PreferenceStore   = (*MemoryStore)(nil)
	_ ExecutionLogStore = (*MemoryStore)(nil)
)

type MemoryStore struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]model.ScheduledMessage
	prefs    map[string]model.UserPreferences
	logs     []model.ExecutionLog
	defaults PreferenceDefaults
}

func NewMemoryStore(defaults PreferenceDefaults) *MemoryStore {
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.MaxPending <= 0 {
		defaults.MaxPending = 10
	}
	return &MemoryStore{
		messages: make(map[string]model.ScheduledMessage),
		prefs:    make(map[string]model.UserPreferences),
		defaults: defaults,
	}
}

func (s *MemoryStore) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		s.nextID++
		msg.ID = "mem-" + strconv.Itoa(s.nextID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = model.StatusPending
	msg.ScheduledAt = msg.ScheduledAt.UTC()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return model.ScheduledMessage{}, ErrNotFound
	}
	return msg, nil
}

func (s *MemoryStore) ListForOwner(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var all []model.ScheduledMessage
	for _, m := range s.messages {
		if m.OwnerID != ownerID {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ScheduledAt.After(all[j].ScheduledAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) CountPending(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.OwnerID == ownerID && m.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DuePending(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.ScheduledMessage
	for _, m := range s.messages {
		if m.Status == model.StatusPending && !m.ScheduledAt.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		at := at.UTC()
		m.Status = model.StatusSent
		m.ExecutedAt = &at
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, at time.Time, reason string) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		at := at.UTC()
		m.Status = model.StatusFailed
		m.ExecutedAt = &at
		m.LastError = &reason
	})
}

func (s *MemoryStore) BumpRetry(ctx context.Context, id string, reason string) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		m.RetryCount++
		m.LastError = &reason
	})
}

func (s *MemoryStore) Cancel(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.OwnerID != ownerID || m.Status != model.StatusPending {
		return ErrConflict
	}
	m.Status = model.StatusCancelled
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) Edit(ctx context.Context, ownerID, id string, scheduledAt *time.Time, content *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.OwnerID != ownerID || m.Status != model.StatusPending {
		return ErrConflict
	}
	if scheduledAt != nil {
		m.ScheduledAt = scheduledAt.UTC()
	}
	if content != nil {
		m.Content = *content
	}
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) mutatePending(id string, fn func(*model.ScheduledMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if m.Status != model.StatusPending {
		return ErrConflict
	}
	fn(&m)
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[ownerID]; ok {
		return p, nil
	}
	now := time.Now().UTC()
	p := model.UserPreferences{
		OwnerID:              ownerID,
		Timezone:             s.defaults.Timezone,
		MaxPending:           s.defaults.MaxPending,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.prefs[ownerID] = p
	return p, nil
}

func (s *MemoryStore) Update(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error) {
	p, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return model.UserPreferences{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
	}
	if patch.MaxPending != nil {
		p.MaxPending = *patch.MaxPending
	}
	if patch.NotificationsEnabled != nil {
		p.NotificationsEnabled = *patch.NotificationsEnabled
	}
	p.UpdatedAt = time.Now().UTC()
	s.prefs[ownerID] = p
	return p, nil
}

func (s *MemoryStore) Append(ctx context.Context, entry model.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		s.nextID++
		entry.ID = "log-" + strconv.Itoa(s.nextID)
	}
	if entry.AttemptTime.IsZero() {
		entry.AttemptTime = time.Now().UTC()
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *MemoryStore) ListForMessage(ctx context.Context, messageID string, limit int) ([]model.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExecutionLog
	for _, e := range s.logs {
		if e.MessageID == messageID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttemptTime.After(out[j].AttemptTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
