package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"schedbot/internal/model"
)

// PreferenceDefaults seed a preference row the first time an owner is
// seen.
type PreferenceDefaults struct {
	Timezone   string
	MaxPending int
}

type PostgresPreferenceStore struct {
	db       *sql.DB
	defaults PreferenceDefaults
}

func NewPostgresPreferenceStore(db *sql.DB, defaults PreferenceDefaults) *PostgresPreferenceStore {
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.MaxPending <= 0 {
		defaults.MaxPending = 10
	}
	return &PostgresPreferenceStore{db: db, defaults: defaults}
}

func (s *PostgresPreferenceStore) GetOrCreate(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	prefs, err := s.get(ctx, ownerID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.UserPreferences{}, err
	}

	now := time.Now().UTC()
	prefs = model.UserPreferences{
		OwnerID:              ownerID,
		Timezone:             s.defaults.Timezone,
		MaxPending:           s.defaults.MaxPending,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	// Another writer may race the insert; ON CONFLICT keeps the first
	// row and we re-read it.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences
			(owner_id, timezone, max_pending, notifications_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID, prefs.Timezone, prefs.MaxPending, prefs.NotificationsEnabled, now, now)
	if err != nil {
		return model.UserPreferences{}, err
	}

	return s.get(ctx, ownerID)
}

func (s *PostgresPreferenceStore) Update(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error) {
	prefs, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return model.UserPreferences{}, err
	}

	if patch.Timezone != nil {
		prefs.Timezone = *patch.Timezone
	}
	if patch.MaxPending != nil {
		prefs.MaxPending = *patch.MaxPending
	}
	if patch.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *patch.NotificationsEnabled
	}
	prefs.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE user_preferences
		SET timezone = $2, max_pending = $3, notifications_enabled = $4, updated_at = $5
		WHERE owner_id = $1
	`, ownerID, prefs.Timezone, prefs.MaxPending, prefs.NotificationsEnabled, prefs.UpdatedAt)
	if err != nil {
		return model.UserPreferences{}, err
	}
	return prefs, nil
}

func (s *PostgresPreferenceStore) get(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	var p model.UserPreferences
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, timezone, max_pending, notifications_enabled, created_at, updated_at
		FROM user_preferences
		WHERE owner_id = $1
	`, ownerID).Scan(
		&p.OwnerID,
		&p.Timezone,
		&p.MaxPending,
		&p.NotificationsEnabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserPreferences{}, ErrNotFound
	}
	return p, err
}
