// Package refine post-processes transcripts through an external text tool.
// The tool reads the transcript on stdin and writes the result to stdout.
package refine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCommand is the fabric CLI
	DefaultCommand = "fabric"

	// DefaultTimeout bounds one refinement
	DefaultTimeout = 2 * time.Minute
)

// DefaultArgs selects fabric's writing pattern
var DefaultArgs = []string{"--pattern", "improve_writing"}

var (
	// ErrUnavailable is returned when the tool was not found at startup
	ErrUnavailable = errors.New("refinement tool not available")

	// ErrEmptyInput is returned for blank text
	ErrEmptyInput = errors.New("nothing to refine")

	// ErrEmptyOutput is returned when the tool printed nothing
	ErrEmptyOutput = errors.New("refinement tool returned no text")
)

// Refiner transforms text
type Refiner interface {
	Available() bool
	Refine(ctx context.Context, text string) (string, error)
}

// Options selects the external tool
type Options struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Exec runs an external command as the refiner
type Exec struct {
	opts Options
	path string
	log  zerolog.Logger
}

// New looks up the tool once. A missing tool yields a refiner whose
// Available reports false.
func New(opts Options, log zerolog.Logger) *Exec {
	return newWithLookPath(opts, log, exec.LookPath)
}

func newWithLookPath(opts Options, log zerolog.Logger, lookPath func(string) (string, error)) *Exec {
	if opts.Command == "" {
		opts.Command = DefaultCommand
		if opts.Args == nil {
			opts.Args = append([]string(nil), DefaultArgs...)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	e := &Exec{opts: opts, log: log}
	if path, err := lookPath(opts.Command); err == nil {
		e.path = path
		log.Debug().Str("command", path).Msg("refinement tool found")
	} else {
		log.Info().Str("command", opts.Command).Msg("refinement tool not found, refine disabled")
	}
	return e
}

// Available reports whether the tool was found on PATH
func (e *Exec) Available() bool {
	return e.path != ""
}

// Name returns the configured command name
func (e *Exec) Name() string {
	return e.opts.Command
}

// Refine pipes text through the tool and returns its trimmed stdout
func (e *Exec) Refine(ctx context.Context, text string) (string, error) {
	if !e.Available() {
		return "", ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.path, e.opts.Args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			e.log.Warn().Dur("timeout", e.opts.Timeout).Msg("refinement timed out")
			return "", fmt.Errorf("%s timed out after %s", e.opts.Command, e.opts.Timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		e.log.Warn().Err(err).Str("stderr", msg).Msg("refinement failed")
		if msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", e.opts.Command, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", e.opts.Command, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", ErrEmptyOutput
	}
	e.log.Info().Int("in", len(text)).Int("out", len(out)).Dur("elapsed", time.Since(start)).Msg("refined")
	return out, nil
}
