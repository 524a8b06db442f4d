package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keys. Each document is stored as a JSON string value.
const (
	settingsKey = "loopcast:settings"
	mediaKey    = "loopcast:media"
)

// RedisStore keeps settings and selection in Redis, for deployments where
// several control instances share one configuration.
type RedisStore struct {
	client *RedisClient
	log    *zap.Logger
}

// NewRedisStore returns a store backed by client.
func NewRedisStore(log *zap.Logger, client *RedisClient) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{client: client, log: log.Named("redis-store")}
}

// GetSettings returns the stored settings merged over the defaults.
func (r *RedisStore) GetSettings(ctx context.Context) (stream.StreamSettings, error) {
	data, err := r.client.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return stream.DefaultSettings(), nil
	}
	if err != nil {
		return stream.StreamSettings{}, fmt.Errorf("get %s: %w", settingsKey, err)
	}

	s, err := decodeSettings(data)
	if err != nil {
		r.log.Warn("unreadable settings; using defaults", zap.String("key", settingsKey), zap.Error(err))
	}
	return s, nil
}

// SaveSettings replaces the settings document.
func (r *RedisStore) SaveSettings(ctx context.Context, s stream.StreamSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.client.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", settingsKey, err)
	}
	return nil
}

// GetMediaSelection returns the stored selection merged over the defaults.
func (r *RedisStore) GetMediaSelection(ctx context.Context) (stream.MediaSelection, error) {
	data, err := r.client.Get(ctx, mediaKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return stream.DefaultSelection(), nil
	}
	if err != nil {
		return stream.MediaSelection{}, fmt.Errorf("get %s: %w", mediaKey, err)
	}

	m, err := decodeSelection(data)
	if err != nil {
		r.log.Warn("unreadable media selection; using defaults", zap.String("key", mediaKey), zap.Error(err))
	}
	return m, nil
}

// SaveMediaSelection replaces the selection document.
func (r *RedisStore) SaveMediaSelection(ctx context.Context, m stream.MediaSelection) error {
	data, err := encodeSelection(m)
	if err != nil {
		return fmt.Errorf("encode media selection: %w", err)
	}
	if err := r.client.Set(ctx, mediaKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", mediaKey, err)
	}
	return nil
}
