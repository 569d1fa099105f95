package session

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Default artifact limits. The minimum catches empty captures; the maximum
// is the service's 25 MB upload limit, in decimal megabytes.
const (
	DefaultMinArtifactBytes int64 = 4096
	DefaultMaxArtifactBytes int64 = 25_000_000
)

// Transcriber turns an audio file into text
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Worker validates and transcribes one artifact. It never touches the
// controller's state; its Result is delivered as a message instead.
type Worker struct {
	transcriber  Transcriber
	minBytes     int64
	maxBytes     int64
	keepArtifact bool
	log          zerolog.Logger
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithLimits sets the accepted artifact size range, inclusive
func WithLimits(minBytes, maxBytes int64) WorkerOption {
	return func(w *Worker) {
		w.minBytes = minBytes
		w.maxBytes = maxBytes
	}
}

// WithKeepArtifact leaves the input file in place. Used when transcribing
// a file the user owns.
func WithKeepArtifact() WorkerOption {
	return func(w *Worker) {
		w.keepArtifact = true
	}
}

// WithWorkerLogger sets the logger
func WithWorkerLogger(log zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.log = log
	}
}

// NewWorker creates a worker
func NewWorker(t Transcriber, opts ...WorkerOption) *Worker {
	w := &Worker{
		transcriber: t,
		minBytes:    DefaultMinArtifactBytes,
		maxBytes:    DefaultMaxArtifactBytes,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run validates the artifact, transcribes it and deletes it. The artifact
// is removed on every path, including validation failures.
func (w *Worker) Run(ctx context.Context, path string) Result {
	if !w.keepArtifact {
		defer w.cleanup(path)
	}

	size, err := w.Validate(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("artifact rejected")
		return failure(err)
	}

	w.log.Info().Str("path", path).Int64("bytes", size).Msg("transcribing")
	start := time.Now()

	text, err := w.transcriber.Transcribe(ctx, path)
	if err != nil {
		w.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("transcription failed")
		return failure(err)
	}

	w.log.Info().Int("chars", len(text)).Dur("elapsed", time.Since(start)).Msg("transcription complete")
	return success(text)
}

// Validate checks that the artifact exists and its size is within limits
func (w *Worker) Validate(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		return 0, &ValidationError{Kind: KindMissing, Path: path, Err: err}
	}
	if info.IsDir() {
		return 0, &ValidationError{Kind: KindMissing, Path: path}
	}

	size := info.Size()
	if size < w.minBytes {
		return size, &ValidationError{Kind: KindTooSmall, Path: path, Size: size, Limit: w.minBytes}
	}
	if size > w.maxBytes {
		return size, &ValidationError{Kind: KindTooLarge, Path: path, Size: size, Limit: w.maxBytes}
	}
	return size, nil
}

func (w *Worker) cleanup(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to delete artifact")
		return
	}
	w.log.Debug().Str("path", path).Msg("artifact deleted")
}
