package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/edirooss/loopcast/internal/domain/stream"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateIdle                  State = "idle"
	StateStarting              State = "starting"
	StateRunning               State = "running"
	StateStopping              State = "stopping"
	StateCrashedPendingRestart State = "crashed_pending_restart"
)

// Status is a snapshot of the supervisor and its telemetry.
type Status struct {
	State         State
	Uptime        string // HH:MM:SS, "00:00:00" without a live encoder
	FPS           string
	Bitrate       string
	CurrentTrack  string
	LastReconnect time.Time // zero when never
	Reconnects    int
	PID           int
	Restarts      int
	LastError     string
	UptimeSeconds float64
}

// Streaming reports whether an encoder is attached.
func (st Status) Streaming() bool {
	return st.State == StateRunning || st.State == StateStopping
}

// FormatUptime renders d as HH:MM:SS, truncated to whole seconds.
func FormatUptime(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

// IsPrecondition reports whether err is a selection/precondition failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, stream.ErrNoVideoSelected) ||
		errors.Is(err, stream.ErrNoAudioAvailable) ||
		errors.Is(err, stream.ErrNoValidAudioAfterFiltering) ||
		errors.Is(err, stream.ErrMediaMissing)
}
