package service

import (
	"context"
	"fmt"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"go.uber.org/zap"
)

// SettingsService validates and persists stream settings.
type SettingsService struct {
	log     *zap.Logger
	store   configstore.Store
	changes *changelog.Changelog // optional
}

// NewSettingsService wires the settings store. changes may be nil.
func NewSettingsService(log *zap.Logger, store configstore.Store, changes *changelog.Changelog) *SettingsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsService{log: log.Named("settings"), store: store, changes: changes}
}

// GetSettings returns the stored settings merged over the defaults.
func (s *SettingsService) GetSettings(ctx context.Context) (stream.StreamSettings, error) {
	return s.store.GetSettings(ctx)
}

// SaveSettings validates and stores in. The running encoder keeps its settings
// until the next start.
func (s *SettingsService) SaveSettings(ctx context.Context, in stream.StreamSettings) (stream.StreamSettings, error) {
	if err := in.Validate(); err != nil {
		return stream.StreamSettings{}, err
	}
	if err := s.store.SaveSettings(ctx, in); err != nil {
		s.log.Error("failed to save settings", zap.Error(err))
		return stream.StreamSettings{}, fmt.Errorf("save settings: %w", err)
	}

	s.log.Info("settings saved",
		zap.String("destination", in.DestinationURL),
		zap.String("stream_key", in.RedactedKey()),
		zap.Int("video_kbps", in.VideoBitrateKbps),
		zap.Int("audio_kbps", in.AudioBitrateKbps),
		zap.Stringer("resolution", in.Resolution),
		zap.Int("fps", in.FPS),
		zap.Float64("audio_gain", in.AudioGain))

	if s.changes != nil {
		s.changes.Record("Updated stream settings", fmt.Sprintf(
			"Video %d kbps, audio %d kbps, %s at %d fps, volume %.1f.",
			in.VideoBitrateKbps, in.AudioBitrateKbps, in.Resolution, in.FPS, in.AudioGain))
	}
	return in, nil
}
