package configstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MediaKind selects a library directory.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Recognized extensions per kind.
var (
	VideoExts = []string{".mp4", ".webm"}
	AudioExts = []string{".mp3", ".wav"}
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media file")
	ErrOutsideLibrary   = errors.New("path is outside the media library")
	ErrMediaNotFound    = errors.New("media file not found")
)

// LibraryFile is one file in the library.
type LibraryFile struct {
	Name    string
	Path    string
	Kind    MediaKind
	Size    int64
	ModTime time.Time
}

// Library manages the media/videos and media/audio directories.
// Concurrent listings of the same kind share one directory scan.
type Library struct {
	log      *zap.Logger
	videoDir string
	audioDir string

	sg singleflight.Group
}

// NewLibrary roots the library at mediaDir.
func NewLibrary(log *zap.Logger, mediaDir string) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		log:      log.Named("library"),
		videoDir: filepath.Join(mediaDir, "videos"),
		audioDir: filepath.Join(mediaDir, "audio"),
	}
}

// Ensure creates the library directories.
func (l *Library) Ensure() error {
	for _, d := range []string{l.videoDir, l.audioDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Dir returns the directory for kind.
func (l *Library) Dir(kind MediaKind) string {
	if kind == KindVideo {
		return l.videoDir
	}
	return l.audioDir
}

func extsFor(kind MediaKind) []string {
	if kind == KindVideo {
		return VideoExts
	}
	return AudioExts
}

// ParseKind accepts "video" or "audio".
func ParseKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrUnsupportedMedia, s)
}

// List returns the files of kind sorted by name. A missing directory is empty.
func (l *Library) List(kind MediaKind) ([]LibraryFile, error) {
	v, err, _ := l.sg.Do(string(kind), func() (any, error) {
		return l.scan(kind)
	})
	if err != nil {
		return nil, err
	}
	// shared result; hand out a copy
	return slices.Clone(v.([]LibraryFile)), nil
}

func (l *Library) scan(kind MediaKind) ([]LibraryFile, error) {
	dir := l.Dir(kind)
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []LibraryFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	exts := extsFor(kind)
	files := make([]LibraryFile, 0, len(ents))
	for _, e := range ents {
		if !e.Type().IsRegular() || !slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, LibraryFile{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// AudioPaths returns the path of every audio file, sorted by name.
func (l *Library) AudioPaths() ([]string, error) {
	files, err := l.List(KindAudio)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// Save writes r to the library under the base name of name, replacing any
// file with the same name atomically.
func (l *Library) Save(kind MediaKind, name string, r io.Reader) (LibraryFile, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return LibraryFile{}, fmt.Errorf("%w: invalid name %q", ErrUnsupportedMedia, name)
	}
	if !slices.Contains(extsFor(kind), strings.ToLower(filepath.Ext(base))) {
		return LibraryFile{}, fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedMedia, base, strings.Join(extsFor(kind), ", "))
	}

	if err := os.MkdirAll(l.Dir(kind), 0o755); err != nil {
		return LibraryFile{}, fmt.Errorf("create %s: %w", l.Dir(kind), err)
	}
	path := filepath.Join(l.Dir(kind), base)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return LibraryFile{}, fmt.Errorf("create pending %s: %w", base, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			l.log.Debug("cleanup pending upload", zap.String("path", path), zap.Error(err))
		}
	}()

	n, err := io.Copy(pending, r)
	if err != nil {
		return LibraryFile{}, fmt.Errorf("write %s: %w", base, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return LibraryFile{}, fmt.Errorf("replace %s: %w", base, err)
	}

	l.log.Info("media uploaded", zap.String("path", path), zap.Int64("bytes", n))
	return LibraryFile{Name: base, Path: path, Kind: kind, Size: n, ModTime: time.Now()}, nil
}

// Contains reports whether path is a direct child of one of the library dirs.
func (l *Library) Contains(path string) bool {
	dir := filepath.Dir(filepath.Clean(path))
	return dir == filepath.Clean(l.videoDir) || dir == filepath.Clean(l.audioDir)
}

// Delete removes path, which must be inside the library.
func (l *Library) Delete(path string) error {
	if !l.Contains(path) {
		return fmt.Errorf("%w: %s", ErrOutsideLibrary, path)
	}
	if err := os.Remove(filepath.Clean(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMediaNotFound, path)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	l.log.Info("media deleted", zap.String("path", path))
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
