// Package configstore persists stream settings and the media selection.
//
// Two backends share the Store interface: JSON files under the data directory
// (default, compatible with config/settings.json and config/media.json) and Redis.
// Reads merge stored values over the defaults, so documents written by older
// versions with missing keys still load.
package configstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edirooss/loopcast/internal/domain/stream"
)

// Store is the persistence boundary for the encoder configuration.
type Store interface {
	GetSettings(ctx context.Context) (stream.StreamSettings, error)
	SaveSettings(ctx context.Context, s stream.StreamSettings) error
	GetMediaSelection(ctx context.Context) (stream.MediaSelection, error)
	SaveMediaSelection(ctx context.Context, m stream.MediaSelection) error
}

// decodeSettings overlays data on the defaults.
func decodeSettings(data []byte) (stream.StreamSettings, error) {
	s := stream.DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return stream.DefaultSettings(), fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// decodeSelection overlays data on the default selection. A JSON null video
// decodes to the empty path.
func decodeSelection(data []byte) (stream.MediaSelection, error) {
	var raw struct {
		VideoPath     *string  `json:"video"`
		AudioPlaylist []string `json:"audioPlaylist"`
		LoopVideo     *bool    `json:"videoLooping"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return stream.DefaultSelection(), fmt.Errorf("decode media selection: %w", err)
	}

	m := stream.DefaultSelection()
	if raw.VideoPath != nil {
		m.VideoPath = *raw.VideoPath
	}
	if raw.AudioPlaylist != nil {
		m.AudioPlaylist = raw.AudioPlaylist
	}
	if raw.LoopVideo != nil {
		m.LoopVideo = *raw.LoopVideo
	}
	return m, nil
}

// encodeSelection writes an empty video as null, matching the on-disk format.
func encodeSelection(m stream.MediaSelection) ([]byte, error) {
	var video *string
	if m.VideoPath != "" {
		video = &m.VideoPath
	}
	playlist := m.AudioPlaylist
	if playlist == nil {
		playlist = []string{}
	}
	return json.MarshalIndent(struct {
		VideoPath     *string  `json:"video"`
		AudioPlaylist []string `json:"audioPlaylist"`
		LoopVideo     bool     `json:"videoLooping"`
	}{video, playlist, m.LoopVideo}, "", "  ")
}
