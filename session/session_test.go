package session

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dictate/whisper"
)

// fakeCapture writes an artifact of the configured size on Start
type fakeCapture struct {
	mu       sync.Mutex
	size     int
	startErr error
	stopErr  error
	starts   int
	stops    int
	aborts   int
	path     string
}

func (f *fakeCapture) Start(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.path = path
	return os.WriteFile(path, make([]byte, f.size), 0o600)
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeCapture) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	_ = os.Remove(f.path)
}

// fakeTranscriber returns a fixed reply and counts calls
type fakeTranscriber struct {
	calls int32
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.text, f.err
}

// fakeSink records published text
type fakeSink struct {
	got []string
}

func (f *fakeSink) Publish(text string) error {
	f.got = append(f.got, text)
	return nil
}

func noSleep(time.Duration) {}

func newController(t *testing.T, capture Capture, tr Transcriber, opts ...ControllerOption) (*Controller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper_record.wav")
	opts = append([]ControllerOption{WithArtifactPath(path), WithSleep(noSleep)}, opts...)
	return NewController(capture, NewWorker(tr), opts...), path
}

func writeArtifact(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper_record.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "processing", Processing.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func TestToggleCycle(t *testing.T) {
	capture := &fakeCapture{size: 8192}
	tr := &fakeTranscriber{text: "hello"}

	var slept time.Duration
	c, path := newController(t, capture, tr,
		WithGracePeriod(300*time.Millisecond),
		WithSleep(func(d time.Duration) { slept += d }),
	)
	ctx := context.Background()

	assert.Equal(t, Stopped, c.State())

	job, err := c.Toggle(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, Recording, c.State())
	assert.False(t, c.RecordingSince().IsZero())

	job, err = c.Toggle(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, Processing, c.State())
	assert.Equal(t, path, job.Path())
	assert.Equal(t, 1, capture.stops)
	assert.Equal(t, 300*time.Millisecond, slept)
	assert.True(t, c.RecordingSince().IsZero())

	// Busy presses change nothing
	for i := 0; i < 3; i++ {
		again, err := c.Toggle(ctx)
		assert.ErrorIs(t, err, ErrBusy)
		assert.Nil(t, again)
		assert.Equal(t, Processing, c.State())
	}
	assert.Equal(t, 1, capture.starts)

	msg := job.Cmd(ctx)()
	done, ok := msg.(DoneMsg)
	require.True(t, ok)
	assert.True(t, done.Result.OK())
	assert.Equal(t, "hello", done.Result.Text)
	assert.Equal(t, Processing, c.State(), "the worker never changes state")

	c.Complete(done.Result)
	assert.Equal(t, Stopped, c.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))
}

func TestToggleStartFailureStaysStopped(t *testing.T) {
	capture := &fakeCapture{startErr: errors.New("exec: \"arecord\": executable file not found in $PATH")}
	c, _ := newController(t, capture, &fakeTranscriber{})

	job, err := c.Toggle(context.Background())
	assert.Nil(t, job)

	var capErr *CaptureError
	require.True(t, errors.As(err, &capErr))
	assert.Contains(t, err.Error(), "could not start recording")
	assert.Equal(t, Stopped, c.State())
}

func TestToggleStopErrorIsNotFatal(t *testing.T) {
	capture := &fakeCapture{size: 8192, stopErr: errors.New("stop tool not available")}
	c, _ := newController(t, capture, &fakeTranscriber{text: "ok"})

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	job, err := c.Toggle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, Processing, c.State())
}

func TestToggleDegraded(t *testing.T) {
	capture := &fakeCapture{}
	c := NewController(capture, nil, WithSleep(noSleep))

	assert.True(t, c.Degraded())
	_, err := c.Toggle(context.Background())
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.Equal(t, Stopped, c.State())
	assert.Equal(t, 0, capture.starts)
}

func TestToggleSequencesStayInStateSet(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	capture := &fakeCapture{size: 8192}
	tr := &fakeTranscriber{text: "x"}
	c, _ := newController(t, capture, tr)
	ctx := context.Background()

	var pending *Job
	workers := 0
	for i := 0; i < 500; i++ {
		// Either press the key or let the outstanding worker finish
		if pending != nil && rng.Intn(3) == 0 {
			c.Complete(pending.Run(ctx))
			pending = nil
			continue
		}

		before := c.State()
		job, err := c.Toggle(ctx)
		after := c.State()

		switch before {
		case Stopped:
			require.NoError(t, err)
			assert.Equal(t, Recording, after)
		case Recording:
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, Processing, after)
			pending = job
			workers++
		case Processing:
			assert.ErrorIs(t, err, ErrBusy)
			assert.Nil(t, job)
			assert.Equal(t, Processing, after)
		default:
			t.Fatalf("state left the valid set: %v", before)
		}
	}
	assert.Equal(t, int32(workers-boolToInt(pending != nil)), atomic.LoadInt32(&tr.calls))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestCompleteOutsideProcessingPanics(t *testing.T) {
	c, _ := newController(t, &fakeCapture{size: 8192}, &fakeTranscriber{})
	assert.Panics(t, func() { c.Complete(Result{}) })

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.Panics(t, func() { c.Complete(Result{}) })
}

func TestInvalidStatePanics(t *testing.T) {
	c, _ := newController(t, &fakeCapture{}, &fakeTranscriber{})
	c.state = State(3)
	assert.Panics(t, func() { _, _ = c.Toggle(context.Background()) })
	assert.Panics(t, func() { c.Abort() })
}

func TestAbort(t *testing.T) {
	capture := &fakeCapture{size: 8192}
	c, path := newController(t, capture, &fakeTranscriber{})

	c.Abort()
	assert.Equal(t, 0, capture.aborts, "nothing to abort when stopped")

	_, err := c.Toggle(context.Background())
	require.NoError(t, err)
	c.Abort()
	assert.Equal(t, 1, capture.aborts)
	assert.Equal(t, Stopped, c.State())
	assert.NoFileExists(t, path)
}

func TestWorkerTooSmall(t *testing.T) {
	// 4095 bytes against the 4096-byte threshold
	path := writeArtifact(t, 4095)
	tr := &fakeTranscriber{text: "never"}

	r := NewWorker(tr).Run(context.Background(), path)

	assert.False(t, r.OK())
	assert.Equal(t, KindTooSmall, r.Kind)
	assert.Equal(t, "Recording too short", r.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&tr.calls))
	assert.NoFileExists(t, path)

	var verr *ValidationError
	require.True(t, errors.As(r.Err, &verr))
	assert.Equal(t, int64(4095), verr.Size)
}

func TestWorkerExactlyMinimumIsAccepted(t *testing.T) {
	path := writeArtifact(t, 4096)
	tr := &fakeTranscriber{text: "ok"}

	r := NewWorker(tr).Run(context.Background(), path)
	assert.True(t, r.OK())
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))
}

func TestWorkerTooLarge(t *testing.T) {
	// 26 MB is over the limit whether read as decimal or binary megabytes
	for _, size := range []int{26_000_000, 26 << 20} {
		path := writeArtifact(t, size)
		tr := &fakeTranscriber{text: "never"}

		r := NewWorker(tr).Run(context.Background(), path)

		assert.Equal(t, KindTooLarge, r.Kind, size)
		assert.Equal(t, "Recording too large", r.Status, size)
		assert.Contains(t, r.Message, "25 MB", size)
		assert.Equal(t, int32(0), atomic.LoadInt32(&tr.calls), size)
		assert.NoFileExists(t, path, size)
	}
}

func TestWorkerExactlyMaximumIsAccepted(t *testing.T) {
	path := writeArtifact(t, int(DefaultMaxArtifactBytes))
	tr := &fakeTranscriber{text: "ok"}

	r := NewWorker(tr).Run(context.Background(), path)
	assert.True(t, r.OK())
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))
}

func TestWorkerMissing(t *testing.T) {
	tr := &fakeTranscriber{}
	r := NewWorker(tr).Run(context.Background(), filepath.Join(t.TempDir(), "none.wav"))

	assert.Equal(t, KindMissing, r.Kind)
	assert.Equal(t, "Recording missing", r.Status)
	assert.Contains(t, r.Err.Error(), "recording missing")
	assert.Equal(t, int32(0), atomic.LoadInt32(&tr.calls))
}

func TestWorkerDeletesArtifactOnFailure(t *testing.T) {
	path := writeArtifact(t, 8192)
	tr := &fakeTranscriber{err: &whisper.APIError{StatusCode: 401, Class: whisper.ClassAuth, Message: "bad key"}}

	r := NewWorker(tr).Run(context.Background(), path)
	assert.Equal(t, KindAuth, r.Kind)
	assert.Contains(t, r.Message, "dictate setup")
	assert.NoFileExists(t, path)
}

func TestWorkerKeepArtifact(t *testing.T) {
	path := writeArtifact(t, 8192)
	r := NewWorker(&fakeTranscriber{text: "kept"}, WithKeepArtifact()).Run(context.Background(), path)
	assert.True(t, r.OK())
	assert.FileExists(t, path)
}

func TestWorkerCustomLimits(t *testing.T) {
	path := writeArtifact(t, 100)
	r := NewWorker(&fakeTranscriber{text: "ok"}, WithLimits(10, 200)).Run(context.Background(), path)
	assert.True(t, r.OK())
}

func TestFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"network exhausted", &whisper.RetryExhaustedError{Attempts: 3, Last: &whisper.APIError{Class: whisper.ClassNetwork}}, KindNetwork},
		{"server exhausted", &whisper.RetryExhaustedError{Attempts: 3, Last: &whisper.APIError{StatusCode: 503, Class: whisper.ClassServer}}, KindExhausted},
		{"rate limit exhausted", &whisper.RetryExhaustedError{Attempts: 3, Last: &whisper.APIError{StatusCode: 429, Class: whisper.ClassRateLimit}}, KindExhausted},
		{"auth", &whisper.APIError{StatusCode: 401, Class: whisper.ClassAuth}, KindAuth},
		{"bad file", &whisper.APIError{StatusCode: 400, Class: whisper.ClassBadFile}, KindBadFile},
		{"client", &whisper.APIError{StatusCode: 404, Class: whisper.ClassClient}, KindClient},
		{"server", &whisper.APIError{StatusCode: 500, Class: whisper.ClassServer}, KindServer},
		{"cancelled", context.Canceled, KindCancelled},
		{"local", errors.New("failed to open file"), KindLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := failure(tt.err)
			assert.Equal(t, tt.want, r.Kind)
			assert.NotEmpty(t, r.Status)
			assert.NotEmpty(t, r.Message)
			assert.False(t, r.OK())
		})
	}
}

// TestHelloWorldScenario drives a full cycle against a mocked endpoint:
// a 1 MB artifact, a 200 "hello world" reply, the clipboard receiving the
// exact bytes and the controller back in Stopped.
func TestHelloWorldScenario(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, "hello world")
	}))
	defer server.Close()

	client, err := whisper.NewClient("sk-test", whisper.WithEndpoint(server.URL))
	require.NoError(t, err)

	capture := &fakeCapture{size: 1 << 20}
	c, path := newController(t, capture, client)
	sink := &fakeSink{}
	ctx := context.Background()

	_, err = c.Toggle(ctx)
	require.NoError(t, err)
	job, err := c.Toggle(ctx)
	require.NoError(t, err)

	done := job.Cmd(ctx)().(DoneMsg)
	c.Complete(done.Result)
	require.True(t, done.Result.OK())
	require.NoError(t, sink.Publish(done.Result.Text))

	assert.Equal(t, "hello world", done.Result.Text)
	assert.Equal(t, []string{"hello world"}, sink.got)
	assert.Equal(t, Stopped, c.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.NoFileExists(t, path)
}
