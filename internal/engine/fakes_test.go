package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"schedbot/internal/model"
	"schedbot/internal/platform"
	"schedbot/internal/store"
)

// memStore is an in-memory stand-in for the Postgres store with the
// same conditional-update semantics: guarded mutations return
// store.ErrConflict when the message is no longer pending.
type memStore struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]model.ScheduledMessage
	prefs    map[string]model.UserPreferences
	logs     []model.ExecutionLog

	dueErr    error
	appendErr error

	// afterRead runs after GetByID returns, letting tests interleave a
	// racing mutation between the engine's re-read and its send.
	afterRead func(id string)
}

func newMemStore() *memStore {
	return &memStore{
		messages: make(map[string]model.ScheduledMessage),
		prefs:    make(map[string]model.UserPreferences),
	}
}

func (s *memStore) add(msg model.ScheduledMessage) model.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		s.nextID++
		msg.ID = "msg-" + strconv.Itoa(s.nextID)
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = msg
	return msg
}

func (s *memStore) get(id string) model.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *memStore) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	*msg = s.add(*msg)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (model.ScheduledMessage, error) {
	s.mu.Lock()
	msg, ok := s.messages[id]
	hook := s.afterRead
	s.mu.Unlock()
	if !ok {
		return model.ScheduledMessage{}, store.ErrNotFound
	}
	if hook != nil {
		hook(id)
	}
	return msg, nil
}

func (s *memStore) ListForOwner(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScheduledMessage
	for _, m := range s.messages {
		if m.OwnerID != ownerID {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) CountPending(ctx context.Context, ownerID string) (int, error) {
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

func (s *memStore) DuePending(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var out []model.ScheduledMessage
	for _, m := range s.messages {
		if m.Status == model.StatusPending && !m.ScheduledAt.After(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		m.Status = model.StatusSent
		m.ExecutedAt = &at
	})
}

func (s *memStore) MarkFailed(ctx context.Context, id string, at time.Time, reason string) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		m.Status = model.StatusFailed
		m.ExecutedAt = &at
		m.LastError = &reason
	})
}

func (s *memStore) BumpRetry(ctx context.Context, id string, reason string) error {
	return s.mutatePending(id, func(m *model.ScheduledMessage) {
		m.RetryCount++
		m.LastError = &reason
	})
}

func (s *memStore) Cancel(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.OwnerID != ownerID {
		return store.ErrConflict
	}
	if m.Status != model.StatusPending {
		return store.ErrConflict
	}
	m.Status = model.StatusCancelled
	s.messages[id] = m
	return nil
}

func (s *memStore) Edit(ctx context.Context, ownerID, id string, scheduledAt *time.Time, content *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.OwnerID != ownerID || m.Status != model.StatusPending {
		return store.ErrConflict
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

func (s *memStore) mutatePending(id string, fn func(*model.ScheduledMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	if m.Status != model.StatusPending {
		return store.ErrConflict
	}
	fn(&m)
	s.messages[id] = m
	return nil
}

func (s *memStore) GetOrCreate(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[ownerID]; ok {
		return p, nil
	}
	now := time.Now().UTC()
	p := model.UserPreferences{
		OwnerID:              ownerID,
		Timezone:             "UTC",
		MaxPending:           10,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.prefs[ownerID] = p
	return p, nil
}

func (s *memStore) Update(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error) {
	p, _ := s.GetOrCreate(ctx, ownerID)
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

func (s *memStore) Append(ctx context.Context, entry model.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) ListForMessage(ctx context.Context, messageID string, limit int) ([]model.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExecutionLog
	for _, e := range s.logs {
		if e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out, nil
}

type sentCall struct {
	Target platform.Target
	Text   string
}

// fakeMessenger scripts resolve/send outcomes. sendErrs are consumed
// one per Send; when exhausted, sends succeed.
type fakeMessenger struct {
	mu         sync.Mutex
	resolveErr error
	sendErrs   []error
	directErr  error

	sent   []sentCall
	direct []string
}

func (f *fakeMessenger) Resolve(ctx context.Context, msg model.ScheduledMessage) (platform.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return platform.Target{}, f.resolveErr
	}
	return platform.Target{ChatID: 1}, nil
}

func (f *fakeMessenger) Send(ctx context.Context, to platform.Target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentCall{Target: to, Text: text})
	return nil
}

func (f *fakeMessenger) SendDirect(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directErr != nil {
		return f.directErr
	}
	f.direct = append(f.direct, text)
	return nil
}

func (f *fakeMessenger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMessenger) directCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.direct)
}
