package configstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupMiniRedis starts an in-memory Redis and a store pointed at it.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := NewRedisClient(zap.NewNop(), mr.Addr(), 0)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(zap.NewNop(), client)
}

func TestRedisStoreEmptyYieldsDefaults(t *testing.T) {
	_, s := setupMiniRedis(t)
	ctx := context.Background()

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, stream.DefaultSettings(), settings)

	sel, err := s.GetMediaSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, stream.DefaultSelection(), sel)
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	mr, s := setupMiniRedis(t)
	ctx := context.Background()

	settings := stream.DefaultSettings()
	settings.StreamKey = "abc"
	settings.Resolution = stream.Resolution{Width: 1920, Height: 1080}
	require.NoError(t, s.SaveSettings(ctx, settings))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, got)

	raw, err := mr.Get(settingsKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"resolution":"1920x1080"`)

	sel := stream.MediaSelection{VideoPath: "bg.mp4", AudioPlaylist: []string{"a.mp3"}, LoopVideo: true}
	require.NoError(t, s.SaveMediaSelection(ctx, sel))
	gotSel, err := s.GetMediaSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, sel, gotSel)
}

func TestRedisStorePartialDocument(t *testing.T) {
	mr, s := setupMiniRedis(t)
	require.NoError(t, mr.Set(settingsKey, `{"videoBitrate":4000}`))
	require.NoError(t, mr.Set(mediaKey, `not json`))

	settings, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4000, settings.VideoBitrateKbps)
	assert.Equal(t, 30, settings.FPS)

	sel, err := s.GetMediaSelection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stream.DefaultSelection(), sel)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, s := setupMiniRedis(t)
	mr.Close()

	_, err := s.GetSettings(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.SaveMediaSelection(context.Background(), stream.DefaultSelection()))
}

func TestRedisClientPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(nil, mr.Addr(), 0)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}
