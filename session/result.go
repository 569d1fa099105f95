package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"dictate/whisper"
)

// Kind classifies how a cycle ended
type Kind int

const (
	KindOK Kind = iota
	KindMissing
	KindTooSmall
	KindTooLarge
	KindNetwork
	KindAuth
	KindBadFile
	KindServer
	KindClient
	KindExhausted
	KindCancelled
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindMissing:
		return "missing"
	case KindTooSmall:
		return "too-small"
	case KindTooLarge:
		return "too-large"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindBadFile:
		return "bad-file"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindExhausted:
		return "exhausted"
	case KindCancelled:
		return "cancelled"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Result is the outcome of one worker run
type Result struct {
	// Text is the transcript, exactly as returned by the service
	Text string

	// Err is nil on success
	Err error

	Kind Kind

	// Status is a short line for the status bar
	Status string

	// Message is the longer explanation shown in the output pane
	Message string
}

// OK reports whether the transcription succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

func success(text string) Result {
	return Result{
		Text:    text,
		Kind:    KindOK,
		Status:  "Transcription complete",
		Message: text,
	}
}

// failure converts any worker error into a user-facing Result
func failure(err error) Result {
	r := Result{Err: err, Message: err.Error()}

	var verr *ValidationError
	if errors.As(err, &verr) {
		r.Kind = verr.Kind
		switch verr.Kind {
		case KindTooSmall:
			r.Status = "Recording too short"
			r.Message = fmt.Sprintf("The recording is only %d bytes (minimum %d). It is probably empty; check the microphone and record a little longer.",
				verr.Size, verr.Limit)
		case KindTooLarge:
			r.Status = "Recording too large"
			r.Message = fmt.Sprintf("The recording is %s, over the %s upload limit. Record shorter passages.",
				humanize.Bytes(uint64(verr.Size)), humanize.Bytes(uint64(verr.Limit)))
		default:
			r.Status = "Recording missing"
			r.Message = fmt.Sprintf("No recording was found at %s. Is the capture tool installed and a microphone connected?", verr.Path)
		}
		return r
	}

	if errors.Is(err, context.Canceled) {
		r.Kind = KindCancelled
		r.Status = "Cancelled"
		return r
	}

	var exhausted *whisper.RetryExhaustedError
	isExhausted := errors.As(err, &exhausted)

	switch class := whisper.Classify(err); {
	case class == whisper.ClassNetwork:
		r.Kind = KindNetwork
		r.Status = "Network error"
	case isExhausted:
		r.Kind = KindExhausted
		r.Status = fmt.Sprintf("Service unavailable after %d attempts", exhausted.Attempts)
	case class == whisper.ClassAuth:
		r.Kind = KindAuth
		r.Status = "Authentication failed"
		r.Message = err.Error() + "\n\nCheck OPENAI_API_KEY or run \"dictate setup\"."
	case class == whisper.ClassBadFile:
		r.Kind = KindBadFile
		r.Status = "Audio file rejected"
	case class == whisper.ClassServer || class == whisper.ClassRateLimit:
		r.Kind = KindServer
		r.Status = "Service error"
	case class == whisper.ClassClient:
		r.Kind = KindClient
		r.Status = "Request rejected"
	default:
		r.Kind = KindLocal
		r.Status = "Transcription failed"
	}
	return r
}
