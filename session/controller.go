package session

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// DefaultArtifactPath is where the capture process writes
const DefaultArtifactPath = "/tmp/whisper_record.wav"

// DefaultGracePeriod lets the capture process finish writing after stop
const DefaultGracePeriod = 300 * time.Millisecond

// Capture starts and stops the external recording process
type Capture interface {
	Start(ctx context.Context, path string) error
	// Stop is best-effort; an error is logged, never fatal
	Stop() error
	// Abort kills the process and removes its output
	Abort()
}

// Controller owns the recording state. Every transition happens under mu;
// the lock is never held across the network call.
type Controller struct {
	mu           sync.Mutex
	state        State
	capture      Capture
	worker       *Worker
	artifactPath string
	grace        time.Duration
	sleep        func(time.Duration)
	now          func() time.Time
	started      time.Time
	log          zerolog.Logger
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithArtifactPath sets the file the capture process writes
func WithArtifactPath(path string) ControllerOption {
	return func(c *Controller) {
		c.artifactPath = path
	}
}

// WithGracePeriod sets the pause between stopping capture and processing
func WithGracePeriod(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.grace = d
	}
}

// WithSleep replaces time.Sleep (for testing)
func WithSleep(fn func(time.Duration)) ControllerOption {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// WithClock replaces time.Now (for testing)
func WithClock(fn func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = fn
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a controller in the Stopped state. A nil worker
// means no credential is available: recording stays disabled.
func NewController(capture Capture, worker *Worker, opts ...ControllerOption) *Controller {
	c := &Controller{
		state:        Stopped,
		capture:      capture,
		worker:       worker,
		artifactPath: DefaultArtifactPath,
		grace:        DefaultGracePeriod,
		sleep:        time.Sleep,
		now:          time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Degraded reports whether recording is disabled for lack of a credential
func (c *Controller) Degraded() bool {
	return c.worker == nil
}

// ArtifactPath returns the capture output path
func (c *Controller) ArtifactPath() string {
	return c.artifactPath
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RecordingSince returns when the current recording started. It is the
// zero time unless the state is Recording.
func (c *Controller) RecordingSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return time.Time{}
	}
	return c.started
}

// Toggle handles one press of the record key.
//
// From Stopped it starts capture and returns a nil Job. From Recording it
// stops capture, waits the grace period and returns the Job the caller must
// run off the UI goroutine. From Processing it returns ErrBusy and changes
// nothing.
func (c *Controller) Toggle(ctx context.Context) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Stopped:
		if c.worker == nil {
			return nil, ErrNoAPIKey
		}
		if err := c.capture.Start(ctx, c.artifactPath); err != nil {
			c.log.Error().Err(err).Msg("capture failed to start")
			return nil, &CaptureError{Err: err}
		}
		c.state = Recording
		c.started = c.now()
		c.log.Info().Str("state", c.state.String()).Str("path", c.artifactPath).Msg("recording")
		return nil, nil

	case Recording:
		if err := c.capture.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("capture stop was not clean")
		}
		c.sleep(c.grace)
		recorded := c.now().Sub(c.started)
		c.state = Processing
		c.log.Info().Str("state", c.state.String()).Dur("recorded", recorded).Msg("processing")
		return &Job{worker: c.worker, path: c.artifactPath, Recorded: recorded}, nil

	case Processing:
		c.log.Debug().Msg("toggle ignored while processing")
		return nil, ErrBusy

	default:
		invalidState(c.state)
		return nil, nil
	}
}

// Complete ends the cycle once the worker's message has arrived. It must
// be called exactly once per Job, on the UI goroutine.
func (c *Controller) Complete(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Processing {
		panic("session: Complete called in state " + c.state.String())
	}
	c.state = Stopped
	c.log.Info().Str("state", c.state.String()).Str("kind", r.Kind.String()).Msg("cycle complete")
}

// Abort kills an active capture and discards its output. It is meant for
// shutdown; a running worker is left to finish on its own.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Recording:
		c.capture.Abort()
		c.state = Stopped
		c.log.Info().Msg("recording aborted")
	case Stopped, Processing:
	default:
		invalidState(c.state)
	}
}

// Job is one pending transcription
type Job struct {
	worker *Worker
	path   string

	// Recorded is how long capture ran
	Recorded time.Duration
}

// Path returns the artifact the job will consume
func (j *Job) Path() string {
	return j.path
}

// Run executes the job on the calling goroutine
func (j *Job) Run(ctx context.Context) Result {
	return j.worker.Run(ctx, j.path)
}

// Cmd wraps the job for Bubble Tea. The runtime executes it on its own
// goroutine and delivers exactly one DoneMsg to Update.
func (j *Job) Cmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		return DoneMsg{Result: j.Run(ctx)}
	}
}

// DoneMsg carries a worker's Result back to the UI goroutine
type DoneMsg struct {
	Result Result
}
