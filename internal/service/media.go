package service

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"go.uber.org/zap"
)

// MediaItem is a library file as presented to operators.
type MediaItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Selected bool   `json:"selected"`
}

// MediaListing is the library content with the current selection marked.
type MediaListing struct {
	Videos    []MediaItem `json:"videos"`
	Audio     []MediaItem `json:"audio"`
	LoopVideo bool        `json:"videoLooping"`
}

// MediaService manages the media library and the persisted selection.
type MediaService struct {
	log     *zap.Logger
	store   configstore.Store
	lib     *configstore.Library
	changes *changelog.Changelog // optional
}

// NewMediaService wires the selection store and the library. changes may be nil.
func NewMediaService(log *zap.Logger, store configstore.Store, lib *configstore.Library, changes *changelog.Changelog) *MediaService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaService{log: log.Named("media"), store: store, lib: lib, changes: changes}
}

// GetMediaSelection returns the stored selection. An empty saved playlist
// stands for every audio file in the library.
func (m *MediaService) GetMediaSelection(ctx context.Context) (stream.MediaSelection, error) {
	sel, err := m.store.GetMediaSelection(ctx)
	if err != nil {
		return stream.MediaSelection{}, err
	}
	sel = sel.Clone()
	if len(sel.AudioPlaylist) > 0 {
		return sel, nil
	}

	all, err := m.lib.AudioPaths()
	if err != nil {
		m.log.Warn("failed to list audio library", zap.Error(err))
		return sel, nil
	}
	sel.AudioPlaylist = all
	return sel, nil
}

// SaveSelection stores the video and playlist, keeping the current loop flag.
// Files that do not exist are logged but kept.
func (m *MediaService) SaveSelection(ctx context.Context, video string, playlist []string) (stream.MediaSelection, error) {
	cur, err := m.store.GetMediaSelection(ctx)
	if err != nil {
		return stream.MediaSelection{}, err
	}

	if video != "" && !configstore.Exists(video) {
		m.log.Warn("selected video not found", zap.String("path", video))
	}
	for _, p := range playlist {
		if !configstore.Exists(p) {
			m.log.Warn("selected audio file not found", zap.String("path", p))
		}
	}

	sel := stream.MediaSelection{
		VideoPath:     video,
		AudioPlaylist: slices.Clone(playlist),
		LoopVideo:     cur.LoopVideo,
	}
	if sel.AudioPlaylist == nil {
		sel.AudioPlaylist = []string{}
	}
	if err := m.store.SaveMediaSelection(ctx, sel); err != nil {
		m.log.Error("failed to save media selection", zap.Error(err))
		return stream.MediaSelection{}, fmt.Errorf("save media selection: %w", err)
	}

	m.log.Info("media selection saved", zap.String("video", video), zap.Int("playlist_len", len(playlist)))
	if m.changes != nil {
		desc := fmt.Sprintf("Video: %s. Playlist: %d track(s).", displayName(video), len(playlist))
		if len(playlist) == 0 {
			desc = fmt.Sprintf("Video: %s. Playlist: all audio files.", displayName(video))
		}
		m.changes.Record("Updated media selection", desc)
	}
	return sel, nil
}

// SetLoop stores the video loop flag.
func (m *MediaService) SetLoop(ctx context.Context, loop bool) (stream.MediaSelection, error) {
	sel, err := m.store.GetMediaSelection(ctx)
	if err != nil {
		return stream.MediaSelection{}, err
	}
	sel.LoopVideo = loop
	if err := m.store.SaveMediaSelection(ctx, sel); err != nil {
		return stream.MediaSelection{}, fmt.Errorf("save media selection: %w", err)
	}
	m.log.Info("video looping updated", zap.Bool("loop", loop))
	return sel, nil
}

// List returns the library with selected files marked.
func (m *MediaService) List(ctx context.Context) (MediaListing, error) {
	sel, err := m.GetMediaSelection(ctx)
	if err != nil {
		return MediaListing{}, err
	}
	videos, err := m.lib.List(configstore.KindVideo)
	if err != nil {
		return MediaListing{}, err
	}
	audio, err := m.lib.List(configstore.KindAudio)
	if err != nil {
		return MediaListing{}, err
	}

	out := MediaListing{
		Videos:    make([]MediaItem, 0, len(videos)),
		Audio:     make([]MediaItem, 0, len(audio)),
		LoopVideo: sel.LoopVideo,
	}
	for _, f := range videos {
		out.Videos = append(out.Videos, MediaItem{Name: f.Name, Path: f.Path, Size: f.Size, Selected: f.Path == sel.VideoPath})
	}
	for _, f := range audio {
		out.Audio = append(out.Audio, MediaItem{Name: f.Name, Path: f.Path, Size: f.Size, Selected: slices.Contains(sel.AudioPlaylist, f.Path)})
	}
	return out, nil
}

// Upload stores r in the library directory for kind.
func (m *MediaService) Upload(kind configstore.MediaKind, name string, r io.Reader) (MediaItem, error) {
	f, err := m.lib.Save(kind, name, r)
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{Name: f.Name, Path: f.Path, Size: f.Size}, nil
}

// Delete removes a library file. It stays in a saved selection until the
// operator changes it; the next start then fails with a missing-media error.
func (m *MediaService) Delete(ctx context.Context, path string) error {
	if err := m.lib.Delete(path); err != nil {
		return err
	}
	sel, err := m.store.GetMediaSelection(ctx)
	if err == nil && (sel.VideoPath == path || slices.Contains(sel.AudioPlaylist, path)) {
		m.log.Warn("deleted file is still selected", zap.String("path", path))
	}
	return nil
}

func displayName(path string) string {
	if path == "" {
		return "none"
	}
	return TrackName(path)
}

// StreamConfig joins the settings and media services into the configuration
// source the supervisor snapshots on every start.
type StreamConfig struct {
	*SettingsService
	*MediaService
}
