package ffmpegcmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/edirooss/loopcast/internal/domain/stream"
)

// Fixed encode parameters.
const (
	DefaultBinary     = "ffmpeg"
	VideoCodec        = "libx264"
	VideoPreset       = "veryfast"
	PixelFormat       = "yuv420p"
	AudioCodec        = "aac"
	AudioSampleRate   = 44100
	AudioChannels     = 2
	OutputFormat      = "flv"
	ReconnectDelayMax = 120 // seconds
)

// Options control command construction.
type Options struct {
	// Binary is argv[0]; defaults to DefaultBinary.
	Binary string

	// ManifestPath is where the concat manifest is written. Required.
	ManifestPath string

	// Stat, when set, is used to verify that the video and every retained audio
	// file exist. A missing file fails with stream.ErrMediaMissing.
	Stat func(name string) (fs.FileInfo, error)
}

// Command is a ready-to-spawn encoder invocation.
type Command struct {
	Argv         []string // argv[0] is the binary
	ManifestPath string
	Playlist     []string // audio entries written to the manifest, in order
	Dropped      []string // audio entries filtered out as unsafe for the manifest
	PublishURL   string
}

// Redacted returns a copy of Argv with key masked in the publish URL argument
// only. Other arguments are left intact even when they contain key.
func (c *Command) Redacted(key string) []string {
	out := slices.Clone(c.Argv)
	for i, a := range out {
		if a == c.PublishURL {
			out[i] = RedactURL(a, key)
		}
	}
	return out
}

// Build validates settings and selection, writes the concat manifest, and assembles
// the encoder argv.
//
// Checks run in this order: settings bounds and stream key, empty audio playlist,
// empty video path, manifest filtering, media existence. Nothing is written to disk
// unless every check before the manifest write passes.
func Build(settings stream.StreamSettings, selection stream.MediaSelection, opts Options) (*Command, error) {
	if opts.ManifestPath == "" {
		return nil, errors.New("manifest path is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.StreamKey == "" {
		return nil, fmt.Errorf("%w: stream key is not set", stream.ErrInvalidConfiguration)
	}
	if len(selection.AudioPlaylist) == 0 {
		return nil, stream.ErrNoAudioAvailable
	}
	if selection.VideoPath == "" {
		return nil, stream.ErrNoVideoSelected
	}

	kept, dropped := FilterAudio(selection.AudioPlaylist)
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %d entries rejected", stream.ErrNoValidAudioAfterFiltering, len(dropped))
	}

	if opts.Stat != nil {
		for _, p := range append([]string{selection.VideoPath}, kept...) {
			if _, err := opts.Stat(p); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", stream.ErrMediaMissing, p, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.ManifestPath), 0o755); err != nil {
		return nil, fmt.Errorf("manifest dir: %w", err)
	}
	if err := WriteManifest(opts.ManifestPath, kept); err != nil {
		return nil, err
	}

	argv := BuildArgv(opts.Binary, settings, selection, opts.ManifestPath)
	return &Command{
		Argv:         argv,
		ManifestPath: opts.ManifestPath,
		Playlist:     kept,
		Dropped:      dropped,
		PublishURL:   settings.PublishURL(),
	}, nil
}

// BuildArgv assembles the encoder argv. It performs no validation and no I/O.
//
// Ordering:
//
//	ffmpeg [-stream_loop -1] -re -i <video>
//	       -f concat -safe 0 -stream_loop -1 -i <manifest>
//	       -map 0:v:0 -map 1:a:0
//	       <cbr video> <cbr audio> -af volume=<gain>
//	       -f flv <reconnect flags> <publish url>
func BuildArgv(binary string, settings stream.StreamSettings, selection stream.MediaSelection, manifestPath string) []string {
	vbr := settings.VideoBitrateKbps

	b := NewBuilder(binary)

	// --- Global ---
	b.WithSwitch("-hide_banner").
		WithSwitch("-nostdin").
		WithSwitch("-stats")

	// --- Input #0: background video ---
	b.WithFlagIf(selection.LoopVideo, "-stream_loop", "-1").
		WithSwitch("-re").
		WithFlag("-i", selection.VideoPath)

	// --- Input #1: audio playlist, looped forever ---
	b.WithFlag("-f", "concat").
		WithFlag("-safe", "0").
		WithFlag("-stream_loop", "-1").
		WithFlag("-i", manifestPath)

	// --- Mapping ---
	b.WithFlag("-map", "0:v:0").
		WithFlag("-map", "1:a:0")

	// --- Video: constant bitrate ---
	b.WithFlag("-c:v", VideoCodec).
		WithFlag("-preset", VideoPreset).
		WithKbpsFlag("-b:v", vbr).
		WithKbpsFlag("-minrate", vbr).
		WithKbpsFlag("-maxrate", vbr).
		WithKbpsFlag("-bufsize", 2*vbr).
		WithFlag("-vf", "scale="+strconv.Itoa(settings.Resolution.Width)+":"+strconv.Itoa(settings.Resolution.Height)).
		WithIntFlag("-r", settings.FPS).
		WithIntFlag("-g", 2*settings.FPS).
		WithFlag("-pix_fmt", PixelFormat)

	// --- Audio: constant bitrate + gain ---
	b.WithFlag("-c:a", AudioCodec).
		WithKbpsFlag("-b:a", settings.AudioBitrateKbps).
		WithIntFlag("-ar", AudioSampleRate).
		WithIntFlag("-ac", AudioChannels).
		WithFlag("-af", "volume="+strconv.FormatFloat(settings.AudioGain, 'f', -1, 64))

	// --- Output ---
	b.WithFlag("-f", OutputFormat).
		WithFlag("-flvflags", "no_duration_filesize").
		WithFlag("-reconnect", "1").
		WithFlag("-reconnect_streamed", "1").
		WithIntFlag("-reconnect_delay_max", ReconnectDelayMax)

	b.WithString(settings.PublishURL())

	return b.BuildArgv()
}
