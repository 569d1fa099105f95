// Package clipboard publishes finished transcripts to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
)

// ErrUnavailable means no clipboard tool (xclip, xsel, wl-copy, pbcopy)
// was found. Callers show it as a note, not a failure.
var ErrUnavailable = errors.New("no clipboard tool available")

// Sink receives text to publish
type Sink interface {
	Publish(text string) error
}

// System writes to the desktop clipboard through atotto/clipboard
type System struct {
	writeAll    func(string) error
	unsupported bool
	log         zerolog.Logger
}

// NewSystem creates a clipboard sink backed by the desktop clipboard
func NewSystem(log zerolog.Logger) *System {
	return &System{
		writeAll:    clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
		log:         log,
	}
}

// Available reports whether a clipboard tool was found at startup
func (s *System) Available() bool {
	return !s.unsupported
}

// Publish copies text verbatim. Empty text is ignored.
func (s *System) Publish(text string) error {
	if text == "" {
		return nil
	}
	if s.unsupported {
		s.log.Warn().Msg("clipboard unavailable, transcript not copied")
		return ErrUnavailable
	}
	if err := s.writeAll(text); err != nil {
		s.log.Warn().Err(err).Msg("clipboard write failed")
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	s.log.Debug().Int("chars", len(text)).Msg("copied to clipboard")
	return nil
}

// Discard is a Sink that drops everything
type Discard struct{}

// Publish does nothing
func (Discard) Publish(string) error { return nil }
