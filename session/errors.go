package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Toggle while a worker is running
	ErrBusy = errors.New("transcription in progress")

	// ErrNoAPIKey is returned by Toggle in degraded mode
	ErrNoAPIKey = errors.New("no API key configured")
)

// CaptureError wraps a failure to spawn the capture process
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return "could not start recording: " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// ValidationError rejects an artifact before anything is uploaded
type ValidationError struct {
	Kind  Kind
	Path  string
	Size  int64
	Limit int64
	Err   error
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindTooSmall:
		return fmt.Sprintf("recording too small: %d bytes (minimum %d)", e.Size, e.Limit)
	case KindTooLarge:
		return fmt.Sprintf("recording too large: %d bytes (maximum %d)", e.Size, e.Limit)
	default:
		if e.Err != nil {
			return fmt.Sprintf("recording missing: %v", e.Err)
		}
		return "recording missing: " + e.Path
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
