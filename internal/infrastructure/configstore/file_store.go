package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// File names inside the config directory.
const (
	SettingsFile = "settings.json"
	MediaFile    = "media.json"
)

// FileStore keeps settings and selection as indented JSON files. Writes are
// atomic (temp file + rename), so a concurrent reader never sees a torn file.
type FileStore struct {
	log *zap.Logger
	dir string

	mu sync.Mutex // serializes writers
}

// NewFileStore stores documents in dir (usually <data>/config).
func NewFileStore(log *zap.Logger, dir string) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{log: log.Named("file-store"), dir: dir}
}

// Dir returns the directory holding the documents.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) settingsPath() string { return filepath.Join(s.dir, SettingsFile) }
func (s *FileStore) mediaPath() string    { return filepath.Join(s.dir, MediaFile) }

// GetSettings returns the stored settings merged over the defaults. A missing
// file yields the defaults; a corrupt one yields the defaults and a warning.
func (s *FileStore) GetSettings(_ context.Context) (stream.StreamSettings, error) {
	data, err := os.ReadFile(s.settingsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return stream.DefaultSettings(), nil
	}
	if err != nil {
		return stream.StreamSettings{}, fmt.Errorf("read %s: %w", s.settingsPath(), err)
	}

	settings, err := decodeSettings(data)
	if err != nil {
		s.log.Warn("unreadable settings; using defaults", zap.String("path", s.settingsPath()), zap.Error(err))
	}
	return settings, nil
}

// SaveSettings replaces the settings document.
func (s *FileStore) SaveSettings(_ context.Context, settings stream.StreamSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.write(s.settingsPath(), data)
}

// GetMediaSelection returns the stored selection merged over the defaults.
func (s *FileStore) GetMediaSelection(_ context.Context) (stream.MediaSelection, error) {
	data, err := os.ReadFile(s.mediaPath())
	if errors.Is(err, fs.ErrNotExist) {
		return stream.DefaultSelection(), nil
	}
	if err != nil {
		return stream.MediaSelection{}, fmt.Errorf("read %s: %w", s.mediaPath(), err)
	}

	m, err := decodeSelection(data)
	if err != nil {
		s.log.Warn("unreadable media selection; using defaults", zap.String("path", s.mediaPath()), zap.Error(err))
	}
	return m, nil
}

// SaveMediaSelection replaces the selection document.
func (s *FileStore) SaveMediaSelection(_ context.Context, m stream.MediaSelection) error {
	data, err := encodeSelection(m)
	if err != nil {
		return fmt.Errorf("encode media selection: %w", err)
	}
	return s.write(s.mediaPath(), data)
}

// Seed writes default documents that do not exist yet.
func (s *FileStore) Seed(ctx context.Context) error {
	if _, err := os.Stat(s.settingsPath()); errors.Is(err, fs.ErrNotExist) {
		if err := s.SaveSettings(ctx, stream.DefaultSettings()); err != nil {
			return err
		}
		s.log.Info("seeded default settings", zap.String("path", s.settingsPath()))
	}
	if _, err := os.Stat(s.mediaPath()); errors.Is(err, fs.ErrNotExist) {
		if err := s.SaveMediaSelection(ctx, stream.DefaultSelection()); err != nil {
			return err
		}
		s.log.Info("seeded default media selection", zap.String("path", s.mediaPath()))
	}
	return nil
}

func (s *FileStore) write(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
