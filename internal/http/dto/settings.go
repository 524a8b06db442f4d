package dto

import (
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/pkg/jsonx"
)

// SettingsUpdate is the body of POST /api/settings. Absent keys keep their
// stored value; null is rejected for every key but the stream key, where it
// clears the key.
type SettingsUpdate struct {
	DestinationURL   jsonx.Field[string]            `json:"rtmpUrl"`
	StreamKey        jsonx.Field[string]            `json:"streamKey"`
	VideoBitrateKbps jsonx.Field[int]               `json:"videoBitrate"`
	AudioBitrateKbps jsonx.Field[int]               `json:"audioBitrate"`
	Resolution       jsonx.Field[stream.Resolution] `json:"resolution"`
	FPS              jsonx.Field[int]               `json:"fps"`
	AudioGain        jsonx.Field[float64]           `json:"audioVolume"`
}

// NullField returns the JSON key of the first non-nullable field sent as null.
func (u SettingsUpdate) NullField() string {
	switch {
	case u.DestinationURL.IsNull():
		return "rtmpUrl"
	case u.VideoBitrateKbps.IsNull():
		return "videoBitrate"
	case u.AudioBitrateKbps.IsNull():
		return "audioBitrate"
	case u.Resolution.IsNull():
		return "resolution"
	case u.FPS.IsNull():
		return "fps"
	case u.AudioGain.IsNull():
		return "audioVolume"
	}
	return ""
}

// Apply overlays the update on cur.
func (u SettingsUpdate) Apply(cur stream.StreamSettings) stream.StreamSettings {
	cur.DestinationURL = u.DestinationURL.Or(cur.DestinationURL)
	if u.StreamKey.IsNull() {
		cur.StreamKey = ""
	} else {
		cur.StreamKey = u.StreamKey.Or(cur.StreamKey)
	}
	cur.VideoBitrateKbps = u.VideoBitrateKbps.Or(cur.VideoBitrateKbps)
	cur.AudioBitrateKbps = u.AudioBitrateKbps.Or(cur.AudioBitrateKbps)
	cur.Resolution = u.Resolution.Or(cur.Resolution)
	cur.FPS = u.FPS.Or(cur.FPS)
	cur.AudioGain = u.AudioGain.Or(cur.AudioGain)
	return cur
}
