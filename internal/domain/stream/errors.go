package stream

import "errors"

// Error taxonomy for the encoder control path.
//
// Precondition and configuration errors are surfaced to the caller and never retried.
// ErrUnexpectedExit is only ever logged: it is observed asynchronously by the exit watcher.
var (
	ErrInvalidConfiguration       = errors.New("invalid configuration")
	ErrNoVideoSelected            = errors.New("no video selected")
	ErrNoAudioAvailable           = errors.New("no audio available")
	ErrNoValidAudioAfterFiltering = errors.New("no valid audio after filtering")
	ErrMediaMissing               = errors.New("selected media file missing")
	ErrAlreadyRunning             = errors.New("stream already running")
	ErrSpawnFailure               = errors.New("encoder spawn failed")
	ErrUnexpectedExit             = errors.New("encoder exited unexpectedly")
)

// ValidationError reports which setting failed validation.
// It unwraps to ErrInvalidConfiguration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
