package prefs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stolenhq/notify/internal/models"
)

// Store is the preference backing store. Reads are frequent (one per
// dispatch), writes are rare (user settings changes). A write must be
// visible to every subsequent read.
type Store interface {
	Get(ctx context.Context, userID string, category models.Category) (models.NotificationPreference, error)
	List(ctx context.Context, userID string) ([]models.NotificationPreference, error)
	ReplaceAll(ctx context.Context, userID string, prefs []models.NotificationPreference) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func prefKey(userID string, category models.Category) string {
	return fmt.Sprintf("notify:prefs:%s:%s", userID, category)
}

// Get returns the stored preference or models.ErrNotFound when the user has
// never configured this category. Transport failures are wrapped as
// PreferenceStoreError so the dispatcher can defer instead of drop.
func (s *RedisStore) Get(ctx context.Context, userID string, category models.Category) (models.NotificationPreference, error) {
	var pref models.NotificationPreference
	raw, err := s.client.Get(ctx, prefKey(userID, category)).Result()
	if err == redis.Nil {
		return pref, models.ErrNotFound
	}
	if err != nil {
		return pref, &models.PreferenceStoreError{Op: "get", Err: err}
	}
	if err := json.Unmarshal([]byte(raw), &pref); err != nil {
		return pref, &models.PreferenceStoreError{Op: "decode", Err: err}
	}
	return pref, nil
}

// List returns the user's stored preferences in canonical category order.
// Categories with no record are omitted; callers apply defaults.
func (s *RedisStore) List(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	var out []models.NotificationPreference
	for _, category := range models.Categories {
		pref, err := s.Get(ctx, userID, category)
		if err == models.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, pref)
	}
	return out, nil
}

// ReplaceAll removes every stored preference for the user and writes the
// given set. Categories absent from prefs revert to defaults.
func (s *RedisStore) ReplaceAll(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
	for _, category := range models.Categories {
		if err := s.client.Del(ctx, prefKey(userID, category)).Err(); err != nil {
			return &models.PreferenceStoreError{Op: "delete", Err: err}
		}
	}
	for _, pref := range prefs {
		pref.UserID = userID
		raw, err := json.Marshal(pref)
		if err != nil {
			return &models.PreferenceStoreError{Op: "encode", Err: err}
		}
		if err := s.client.Set(ctx, prefKey(userID, pref.Category), raw, 0).Err(); err != nil {
			return &models.PreferenceStoreError{Op: "set", Err: err}
		}
	}
	return nil
}
