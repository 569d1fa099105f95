// Package whisper provides a Go client for the OpenAI audio transcription
// endpoint. One multipart request is sent per attempt; failed attempts are
// classified and retried according to a fixed policy table.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model IDs and response formats accepted by the transcription endpoint
const (
	ModelWhisper1 = "whisper-1"

	ResponseFormatText = "text"
	ResponseFormatJSON = "json"
)

// Class groups a failed attempt by what went wrong
type Class int

const (
	// ClassNetwork is a transport failure: connection refused, timeout, reset
	ClassNetwork Class = iota
	// ClassServer is a 5xx response
	ClassServer
	// ClassRateLimit is a 429 response
	ClassRateLimit
	// ClassAuth is a 401 response; the credential is wrong or revoked
	ClassAuth
	// ClassBadFile is a 4xx response complaining about the uploaded audio
	ClassBadFile
	// ClassClient is any other 4xx response
	ClassClient
	// ClassLocal is a failure before anything was sent (file unreadable, cancelled)
	ClassLocal
)

// String returns the human-readable name of the class.
func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassServer:
		return "server"
	case ClassRateLimit:
		return "rate-limit"
	case ClassAuth:
		return "auth"
	case ClassBadFile:
		return "bad-file"
	case ClassClient:
		return "client"
	case ClassLocal:
		return "local"
	default:
		return "unknown"
	}
}

// retryPolicy decides whether another attempt can change the outcome.
var retryPolicy = map[Class]bool{
	ClassNetwork:   true,
	ClassServer:    true,
	ClassRateLimit: true,
	ClassAuth:      false,
	ClassBadFile:   false,
	ClassClient:    false,
	ClassLocal:     false,
}

// Retryable reports whether a failure of this class is worth another attempt.
func (c Class) Retryable() bool {
	return retryPolicy[c]
}

// statusPolicy maps HTTP status ranges to a class. First match wins.
var statusPolicy = []struct {
	lo, hi int
	class  Class
}{
	{401, 401, ClassAuth},
	{429, 429, ClassRateLimit},
	{400, 499, ClassClient},
	{500, 599, ClassServer},
}

// ClassifyStatus maps a non-200 HTTP status to a class. Statuses outside
// the table are treated as client errors.
func ClassifyStatus(status int) Class {
	for _, p := range statusPolicy {
		if status >= p.lo && status <= p.hi {
			return p.class
		}
	}
	return ClassClient
}

// badFileMarkers are fragments of error codes and messages the endpoint uses
// when it cannot decode the uploaded audio.
var badFileMarkers = []string{
	"invalid_file",
	"unsupported_file",
	"file format",
	"could not be decoded",
	"invalid file",
	"audio file",
}

func mentionsBadFile(code, message string) bool {
	haystack := strings.ToLower(code + " " + message)
	for _, m := range badFileMarkers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

// Classify returns the class of an error produced by the client. Errors
// that never reached the wire, including cancellation, are ClassLocal.
func Classify(err error) Class {
	if errors.Is(err, context.Canceled) {
		return ClassLocal
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ClassLocal
}

// errorEnvelope is the JSON error body returned by the endpoint
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

// APIError represents a failed transcription attempt
type APIError struct {
	// StatusCode is the HTTP status, zero for transport failures
	StatusCode int

	// Class is the failure classification driving the retry decision
	Class Class

	// Message is the service's error message or the transport error text
	Message string

	// Type and Code are copied from the JSON error body when present
	Type string
	Code string

	// Err is the underlying transport error, if any
	Err error
}

func (e *APIError) Error() string {
	switch e.Class {
	case ClassNetwork:
		return "network error: " + e.Message
	case ClassAuth:
		return "authentication failed (status 401): " + e.Message
	case ClassBadFile:
		return fmt.Sprintf("the service rejected the audio file (status %d): %s", e.StatusCode, e.Message)
	case ClassRateLimit:
		return "rate limited (status 429): " + e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d) %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the attempt that produced e may be retried.
func (e *APIError) Retryable() bool {
	return e.Class.Retryable()
}

// RetryExhaustedError is returned when every attempt failed with a retryable error
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// RetryEvent describes a failed attempt that is about to be retried
type RetryEvent struct {
	// Attempt is the 1-based number of the attempt that failed
	Attempt int

	// MaxAttempts is the configured attempt budget
	MaxAttempts int

	// Delay is how long the client waits before the next attempt
	Delay time.Duration

	// Err is the failure of this attempt
	Err error
}
