package stream

import (
	"math"
	"strings"

	"github.com/edirooss/loopcast/pkg/avurl"
)

// Bounds for StreamSettings numeric fields (inclusive).
const (
	MinVideoBitrateKbps = 500
	MaxVideoBitrateKbps = 8000
	MinAudioBitrateKbps = 64
	MaxAudioBitrateKbps = 320
	MinFPS              = 1
	MaxFPS              = 60
	MinAudioGain        = 0.0
	MaxAudioGain        = 2.0
)

// StreamSettings are the persisted encode and publish parameters.
//
// JSON keys match the settings.json layout operators already have on disk.
type StreamSettings struct {
	DestinationURL   string     `json:"rtmpUrl"`
	StreamKey        string     `json:"streamKey"`
	VideoBitrateKbps int        `json:"videoBitrate"`
	AudioBitrateKbps int        `json:"audioBitrate"`
	Resolution       Resolution `json:"resolution"`
	FPS              int        `json:"fps"`
	AudioGain        float64    `json:"audioVolume"`
}

// DefaultSettings returns the settings used when nothing has been stored yet.
func DefaultSettings() StreamSettings {
	return StreamSettings{
		DestinationURL:   "rtmp://a.rtmp.youtube.com/live2",
		StreamKey:        "",
		VideoBitrateKbps: 2500,
		AudioBitrateKbps: 128,
		Resolution:       Resolution{Width: 1280, Height: 720},
		FPS:              30,
		AudioGain:        1.0,
	}
}

// PublishURL joins the destination base URL and the stream key with a single slash.
func (s StreamSettings) PublishURL() string {
	return strings.TrimRight(s.DestinationURL, "/") + "/" + s.StreamKey
}

// RedactedKey returns the stream key with all but the last four characters masked.
func (s StreamSettings) RedactedKey() string {
	if len(s.StreamKey) <= 4 {
		return strings.Repeat("*", len(s.StreamKey))
	}
	return strings.Repeat("*", len(s.StreamKey)-4) + s.StreamKey[len(s.StreamKey)-4:]
}

// Validate checks every field against its bounds. The stream key is allowed to be
// empty here so operators can save partial settings; the command builder refuses it.
func (s StreamSettings) Validate() error {
	if strings.TrimSpace(s.DestinationURL) == "" {
		return invalid("rtmpUrl", "destination URL is required")
	}
	if _, err := avurl.ParseDestination(s.DestinationURL); err != nil {
		return invalid("rtmpUrl", err.Error())
	}
	if s.VideoBitrateKbps < MinVideoBitrateKbps || s.VideoBitrateKbps > MaxVideoBitrateKbps {
		return invalid("videoBitrate", "must be between 500 and 8000 kbps")
	}
	if s.AudioBitrateKbps < MinAudioBitrateKbps || s.AudioBitrateKbps > MaxAudioBitrateKbps {
		return invalid("audioBitrate", "must be between 64 and 320 kbps")
	}
	if !s.Resolution.Supported() {
		return invalid("resolution", "unsupported resolution "+s.Resolution.String())
	}
	if s.FPS < MinFPS || s.FPS > MaxFPS {
		return invalid("fps", "must be between 1 and 60")
	}
	if math.IsNaN(s.AudioGain) || s.AudioGain < MinAudioGain || s.AudioGain > MaxAudioGain {
		return invalid("audioVolume", "must be between 0 and 2")
	}
	return nil
}
