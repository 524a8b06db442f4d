package dto

import (
	"time"

	"github.com/edirooss/loopcast/internal/service"
)

// StreamStatus is the body of GET /api/stream/status.
type StreamStatus struct {
	Status    string      `json:"status"` // streaming | idle
	State     string      `json:"state"`
	Stats     StreamStats `json:"stats"`
	PID       int         `json:"pid,omitempty"`
	Restarts  int         `json:"restarts"`
	LastError string      `json:"lastError,omitempty"`
}

type StreamStats struct {
	Uptime        string `json:"uptime"`
	FPS           string `json:"fps"`
	Bitrate       string `json:"bitrate"`
	LastReconnect string `json:"lastReconnect"` // RFC3339 or "Never"
	CurrentTrack  string `json:"currentTrack"`
}

// NewStreamStatus renders a supervisor status.
func NewStreamStatus(st service.Status) StreamStatus {
	out := StreamStatus{
		Status:    "idle",
		State:     string(st.State),
		PID:       st.PID,
		Restarts:  st.Restarts,
		LastError: st.LastError,
		Stats: StreamStats{
			Uptime:        st.Uptime,
			FPS:           st.FPS,
			Bitrate:       st.Bitrate,
			LastReconnect: "Never",
			CurrentTrack:  st.CurrentTrack,
		},
	}
	if st.Streaming() {
		out.Status = "streaming"
	}
	if !st.LastReconnect.IsZero() {
		out.Stats.LastReconnect = st.LastReconnect.UTC().Format(time.RFC3339)
	}
	return out
}
