// Package cache provides a Redis read-through cache for user
// preferences, which the notifier hits on every terminal transition.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"schedbot/internal/model"
	"schedbot/internal/store"
)

var _ store.PreferenceStore = (*PreferenceCache)(nil)

type PreferenceCache struct {
	rdb  *redis.Client
	ttl  time.Duration
	next store.PreferenceStore
}

func NewPreferenceCache(rdb *redis.Client, ttl time.Duration, next store.PreferenceStore) *PreferenceCache {
	return &PreferenceCache{rdb: rdb, ttl: ttl, next: next}
}

func prefsKey(ownerID string) string {
	return fmt.Sprintf("prefs:%s", ownerID)
}

// GetOrCreate serves from Redis when possible and falls back to the
// underlying store on miss or on any Redis error; a cache failure is
// never surfaced to the caller.
func (c *PreferenceCache) GetOrCreate(ctx context.Context, ownerID string) (model.UserPreferences, error) {
	raw, err := c.rdb.Get(ctx, prefsKey(ownerID)).Bytes()
	if err == nil {
		var prefs model.UserPreferences
		if err := json.Unmarshal(raw, &prefs); err == nil {
			return prefs, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = c.rdb.Del(ctx, prefsKey(ownerID)).Err()
	}

	prefs, err := c.next.GetOrCreate(ctx, ownerID)
	if err != nil {
		return model.UserPreferences{}, err
	}
	c.set(ctx, prefs)
	return prefs, nil
}

// Update writes through to the store and refreshes the cached entry.
func (c *PreferenceCache) Update(ctx context.Context, ownerID string, patch model.PreferencePatch) (model.UserPreferences, error) {
	prefs, err := c.next.Update(ctx, ownerID, patch)
	if err != nil {
		return model.UserPreferences{}, err
	}
	c.set(ctx, prefs)
	return prefs, nil
}

func (c *PreferenceCache) set(ctx context.Context, prefs model.UserPreferences) {
	b, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, prefsKey(prefs.OwnerID), b, c.ttl).Err()
}
