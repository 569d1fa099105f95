// Package session coordinates one recording cycle: start capture, stop it,
// validate and transcribe the artifact off the UI goroutine, and hand the
// result back as a single Bubble Tea message.
package session

import "fmt"

// State is the recorder lifecycle
type State int

const (
	// Stopped is idle; a toggle starts capture
	Stopped State = iota
	// Recording means the capture process is running
	Recording
	// Processing means a worker owns the artifact; toggles are ignored
	Processing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// invalidState aborts on a value outside the three states. Reaching it is a
// programming error, never a runtime condition.
func invalidState(s State) {
	panic(fmt.Sprintf("session: invalid state %s", s))
}
