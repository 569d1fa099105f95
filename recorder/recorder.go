// Package recorder drives the external audio capture process. The process
// writes a WAV file to a fixed path; the rest of the program only ever looks
// at that file.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// DefaultCommand records from the default ALSA device
	DefaultCommand = "arecord"

	// DefaultStopCommand signals the capture process by name
	DefaultStopCommand = "pkill"
)

// DefaultArgs selects CD quality PCM in a WAV container without progress
// output. The output path is appended at start time.
var DefaultArgs = []string{"-f", "cd", "-t", "wav", "-q"}

var (
	// ErrAlreadyRecording is returned by Start while a capture process is running
	ErrAlreadyRecording = errors.New("capture already running")

	// ErrNotRecording is returned by Stop when nothing was started
	ErrNotRecording = errors.New("capture not running")

	// ErrNoStopTool is returned by Stop when the stop command is missing and
	// the process had to be signalled directly
	ErrNoStopTool = errors.New("stop tool not available")
)

// StartError is returned when the capture process could not be spawned
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Options configures the capture and stop commands
type Options struct {
	// Command is the capture executable
	Command string

	// Args are passed before the output path
	Args []string

	// StopCommand terminates the capture process; empty means signal it directly
	StopCommand string

	// StopArgs are passed to StopCommand; defaults to the capture command name
	StopArgs []string
}

// DefaultOptions returns the arecord/pkill pair
func DefaultOptions() Options {
	return Options{
		Command:     DefaultCommand,
		Args:        append([]string(nil), DefaultArgs...),
		StopCommand: DefaultStopCommand,
		StopArgs:    []string{DefaultCommand},
	}
}

// Recorder manages a single capture process
type Recorder struct {
	mu       sync.Mutex
	opts     Options
	cmd      *exec.Cmd
	path     string
	exited   chan struct{}
	lookPath func(string) (string, error)
	log      zerolog.Logger
}

// New creates a recorder
func New(opts Options, log zerolog.Logger) *Recorder {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.StopCommand != "" && len(opts.StopArgs) == 0 {
		opts.StopArgs = []string{filepath.Base(opts.Command)}
	}
	return &Recorder{
		opts:     opts,
		lookPath: exec.LookPath,
		log:      log,
	}
}

// Start spawns the capture process writing to path. It returns once the
// process is running; it does not wait for audio to arrive.
func (r *Recorder) Start(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return ErrAlreadyRecording
	}

	args := append(append([]string(nil), r.opts.Args...), path)
	cmd := exec.CommandContext(ctx, r.opts.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &StartError{Command: r.opts.Command, Err: err}
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		if err != nil {
			r.log.Debug().Err(err).Str("stderr", strings.TrimSpace(stderr.String())).Msg("capture process exited")
		}
		close(exited)
	}()

	r.cmd = cmd
	r.path = path
	r.exited = exited

	r.log.Info().Str("command", r.opts.Command).Str("path", path).Int("pid", cmd.Process.Pid).Msg("capture started")
	return nil
}

// Stop asks the capture process to finish. It is best-effort: when the stop
// command is unavailable the process is interrupted directly and
// ErrNoStopTool is returned so the caller can warn about it.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return ErrNotRecording
	}
	cmd := r.cmd
	r.cmd = nil

	var stopErr error
	if r.opts.StopCommand != "" {
		if _, err := r.lookPath(r.opts.StopCommand); err != nil {
			r.log.Warn().Str("command", r.opts.StopCommand).Msg("stop command not found, signalling capture process")
			stopErr = ErrNoStopTool
		} else {
			out, err := exec.Command(r.opts.StopCommand, r.opts.StopArgs...).CombinedOutput()
			if err == nil {
				r.log.Info().Str("command", r.opts.StopCommand).Msg("capture stopped")
				return nil
			}
			r.log.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("stop command failed, signalling capture process")
		}
	}

	// SIGINT lets arecord flush and close the WAV header properly
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
	return stopErr
}

// Abort kills the capture process and removes its output
func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return
	}
	_ = r.cmd.Process.Kill()
	<-r.exited
	_ = os.Remove(r.path)
	r.cmd = nil
	r.log.Info().Str("path", r.path).Msg("capture aborted")
}

// Running reports whether a capture process has been started and not stopped
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

// Check reports whether an executable is on PATH
func Check(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found. Please install it first", name)
	}
	return nil
}

// CheckTools checks the capture and stop commands
func CheckTools(opts Options) []error {
	var errs []error
	if err := Check(opts.Command); err != nil {
		errs = append(errs, err)
	}
	if opts.StopCommand != "" {
		if err := Check(opts.StopCommand); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
