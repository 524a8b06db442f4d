package stream

import "slices"

// MediaSelection is the operator's choice of background video and audio playlist.
type MediaSelection struct {
	VideoPath     string   `json:"video"`
	AudioPlaylist []string `json:"audioPlaylist"`
	LoopVideo     bool     `json:"videoLooping"`
}

// DefaultSelection is the empty selection with video looping on.
func DefaultSelection() MediaSelection {
	return MediaSelection{AudioPlaylist: []string{}, LoopVideo: true}
}

// Clone returns a deep copy so a snapshot taken at start time cannot be
// mutated by later file-management operations.
func (m MediaSelection) Clone() MediaSelection {
	out := m
	out.AudioPlaylist = slices.Clone(m.AudioPlaylist)
	if out.AudioPlaylist == nil {
		out.AudioPlaylist = []string{}
	}
	return out
}
