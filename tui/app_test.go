package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dictate/clipboard"
	"dictate/session"
	"dictate/whisper"
)

type fakeCapture struct {
	startErr error
	aborted  bool
	size     int
}

func (f *fakeCapture) Start(_ context.Context, path string) error {
	if f.startErr != nil {
		return f.startErr
	}
	return os.WriteFile(path, make([]byte, f.size), 0o600)
}

func (f *fakeCapture) Stop() error { return nil }

func (f *fakeCapture) Abort() { f.aborted = true }

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeSink struct {
	got []string
	err error
}

func (f *fakeSink) Publish(text string) error {
	f.got = append(f.got, text)
	return f.err
}

type fakeRefiner struct {
	available bool
	calls     int
}

func (f *fakeRefiner) Available() bool { return f.available }

func (f *fakeRefiner) Refine(_ context.Context, text string) (string, error) {
	f.calls++
	return strings.ToUpper(text), nil
}

var (
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyQuit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

type fixture struct {
	capture *fakeCapture
	tr      *fakeTranscriber
	sink    *fakeSink
	ctrl    *session.Controller
}

func newFixture(t *testing.T, text string, err error) *fixture {
	t.Helper()
	f := &fixture{
		capture: &fakeCapture{size: 8192},
		tr:      &fakeTranscriber{text: text, err: err},
		sink:    &fakeSink{},
	}
	f.ctrl = session.NewController(f.capture, session.NewWorker(f.tr),
		session.WithArtifactPath(filepath.Join(t.TempDir(), "rec.wav")),
		session.WithSleep(func(time.Duration) {}),
	)
	return f
}

func (f *fixture) model(refiner *fakeRefiner) Model {
	opts := Options{Controller: f.ctrl, Clipboard: f.sink, Model: "whisper-1"}
	if refiner != nil {
		opts.Refiner = refiner
	}
	return New(context.Background(), opts)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

// record presses space twice and returns the worker command
func record(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	m, cmd := update(t, m, keySpace)
	if cmd == nil {
		t.Fatal("expected a timer command after starting to record")
	}
	return update(t, m, keySpace)
}

func TestNewModel(t *testing.T) {
	f := newFixture(t, "", nil)
	m := f.model(nil)

	if m.Status() != "Ready" {
		t.Errorf("expected status Ready, got %q", m.Status())
	}
	if m.keys.Refine.Enabled() {
		t.Error("refine should be disabled without a refiner")
	}
	if m.Init() == nil {
		t.Error("expected Init to return a command")
	}
	if !strings.Contains(m.View(), "dictate") {
		t.Error("expected the header in the view")
	}
}

func TestRecordTranscribeCopy(t *testing.T) {
	f := newFixture(t, "hello world", nil)
	m := f.model(nil)

	m, cmd := update(t, m, keySpace)
	if f.ctrl.State() != session.Recording {
		t.Fatalf("expected Recording, got %s", f.ctrl.State())
	}
	if cmd == nil {
		t.Fatal("expected timer command")
	}
	if !strings.Contains(m.View(), "00:00") {
		t.Error("expected the recording timer in the view")
	}

	m, cmd = update(t, m, keySpace)
	if f.ctrl.State() != session.Processing {
		t.Fatalf("expected Processing, got %s", f.ctrl.State())
	}
	if cmd == nil {
		t.Fatal("expected the worker command")
	}

	done, ok := cmd().(session.DoneMsg)
	if !ok {
		t.Fatal("worker command must produce a DoneMsg")
	}
	if f.ctrl.State() != session.Processing {
		t.Error("state must not change until the message is handled")
	}

	m, cmd = update(t, m, done)
	if f.ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped after DoneMsg, got %s", f.ctrl.State())
	}
	if m.Text() != "hello world" {
		t.Errorf("expected transcript, got %q", m.Text())
	}
	if cmd == nil {
		t.Fatal("expected clipboard command")
	}

	m, _ = update(t, m, cmd())
	if len(f.sink.got) != 1 || f.sink.got[0] != "hello world" {
		t.Errorf("clipboard got %q", f.sink.got)
	}
	if m.Status() != "Copied to clipboard" {
		t.Errorf("expected copied status, got %q", m.Status())
	}
}

func TestBusyPressIsIgnored(t *testing.T) {
	f := newFixture(t, "x", nil)
	m, worker := record(t, f.model(nil))

	m, cmd := update(t, m, keySpace)
	if cmd != nil {
		t.Error("a press while processing must not start anything")
	}
	if f.ctrl.State() != session.Processing {
		t.Errorf("expected Processing, got %s", f.ctrl.State())
	}

	update(t, m, worker())
	if f.ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped, got %s", f.ctrl.State())
	}
}

func TestFailureResult(t *testing.T) {
	f := newFixture(t, "", &whisper.APIError{StatusCode: 401, Class: whisper.ClassAuth, Message: "bad key"})
	m, worker := record(t, f.model(nil))

	m, cmd := update(t, m, worker())
	if cmd != nil {
		t.Error("nothing should be copied after a failure")
	}
	if m.Status() != "Authentication failed" {
		t.Errorf("unexpected status %q", m.Status())
	}
	if f.ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped, got %s", f.ctrl.State())
	}
	if len(f.sink.got) != 0 {
		t.Error("clipboard must stay untouched")
	}
}

func TestFailureClearsPreviousTranscript(t *testing.T) {
	f := newFixture(t, "first take", nil)
	refiner := &fakeRefiner{available: true}
	m, worker := record(t, f.model(refiner))
	m, _ = update(t, m, worker())
	if m.Text() != "first take" {
		t.Fatalf("expected first transcript, got %q", m.Text())
	}

	f.tr.text, f.tr.err = "", &whisper.APIError{StatusCode: 500, Class: whisper.ClassServer, Message: "boom"}
	m, worker = record(t, m)
	m, _ = update(t, m, worker())

	if m.Text() != "" {
		t.Errorf("failure must clear the transcript, got %q", m.Text())
	}
	if _, cmd := update(t, m, runeKey('c')); cmd != nil {
		t.Error("copy must do nothing after a failure")
	}
	if _, cmd := update(t, m, runeKey('r')); cmd != nil {
		t.Error("refine must do nothing after a failure")
	}
	if len(f.sink.got) != 0 {
		t.Errorf("clipboard got %q", f.sink.got)
	}
}

func TestStaleTickIsDropped(t *testing.T) {
	f := newFixture(t, "x", nil)
	m, worker := record(t, f.model(nil))
	m, _ = update(t, m, worker())

	// Second recording; the first recording's tick may still be pending
	m, _ = update(t, m, keySpace)
	if f.ctrl.State() != session.Recording {
		t.Fatalf("expected Recording, got %s", f.ctrl.State())
	}

	if _, cmd := update(t, m, tickMsg{gen: m.recordGen - 1, at: time.Now()}); cmd != nil {
		t.Error("a tick from the previous recording must not re-arm")
	}
	if _, cmd := update(t, m, tickMsg{gen: m.recordGen, at: time.Now()}); cmd == nil {
		t.Error("the current recording's tick must re-arm")
	}
}

func TestCaptureFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	f.capture.startErr = errors.New("arecord not found")
	m := f.model(nil)

	m, _ = update(t, m, keySpace)
	if f.ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped, got %s", f.ctrl.State())
	}
	if m.Status() != "Could not start recording" {
		t.Errorf("unexpected status %q", m.Status())
	}
	last := m.Feed().Entries[len(m.Feed().Entries)-1]
	if last.Type != EntryError {
		t.Errorf("expected an error entry, got %s", last.Type)
	}
}

func TestDegradedMode(t *testing.T) {
	ctrl := session.NewController(&fakeCapture{}, nil)
	m := New(context.Background(), Options{Controller: ctrl, APIKeyHelp: "set OPENAI_API_KEY"})

	if !strings.Contains(m.Status(), "No API key") {
		t.Errorf("unexpected status %q", m.Status())
	}

	m, cmd := update(t, m, keySpace)
	if cmd != nil {
		t.Error("recording must stay disabled")
	}
	if ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped, got %s", ctrl.State())
	}
	if !strings.Contains(m.Status(), "dictate setup") {
		t.Errorf("expected setup hint, got %q", m.Status())
	}
}

func TestClipboardUnavailable(t *testing.T) {
	f := newFixture(t, "hello", nil)
	f.sink.err = clipboard.ErrUnavailable
	m, worker := record(t, f.model(nil))

	m, cmd := update(t, m, worker())
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.Status(), "no clipboard tool") {
		t.Errorf("unexpected status %q", m.Status())
	}
	if m.Text() != "hello" {
		t.Error("transcript should still be shown")
	}
}

func TestRefine(t *testing.T) {
	f := newFixture(t, "hello", nil)
	refiner := &fakeRefiner{available: true}
	m := f.model(refiner)

	// Nothing to refine yet
	if _, cmd := update(t, m, runeKey('r')); cmd != nil {
		t.Error("refine without text must do nothing")
	}

	m, worker := record(t, m)
	m, _ = update(t, m, worker())

	m, cmd := update(t, m, runeKey('r'))
	if cmd == nil {
		t.Fatal("expected refine command")
	}
	if !m.refining {
		t.Error("expected refining flag")
	}

	m, cmd = update(t, m, cmd())
	if m.Text() != "HELLO" {
		t.Errorf("expected refined text, got %q", m.Text())
	}
	if cmd == nil {
		t.Fatal("refined text should be copied")
	}
	update(t, m, cmd())
	if got := f.sink.got[len(f.sink.got)-1]; got != "HELLO" {
		t.Errorf("clipboard got %q", got)
	}
	if refiner.calls != 1 {
		t.Errorf("expected 1 refine call, got %d", refiner.calls)
	}
}

func TestRefineOnlyWhenStopped(t *testing.T) {
	f := newFixture(t, "hello", nil)
	refiner := &fakeRefiner{available: true}
	m, worker := record(t, f.model(refiner))
	m, _ = update(t, m, worker())

	// Start a new recording; refine is gated on Stopped
	m, _ = update(t, m, keySpace)
	if _, cmd := update(t, m, runeKey('r')); cmd != nil {
		t.Error("refine must be ignored while recording")
	}
}

func TestRefineHiddenWhenUnavailable(t *testing.T) {
	f := newFixture(t, "hello", nil)
	m := f.model(&fakeRefiner{available: false})
	if m.keys.Refine.Enabled() {
		t.Error("refine should be disabled when the tool is missing")
	}
}

func TestRetryEventsReachFeed(t *testing.T) {
	f := newFixture(t, "", nil)
	ch := make(chan whisper.RetryEvent, 1)
	m := New(context.Background(), Options{Controller: f.ctrl, Retries: ch})

	ch <- whisper.RetryEvent{Attempt: 1, MaxAttempts: 3, Delay: 2 * time.Second, Err: errors.New("status 500")}
	msg := waitForRetry(ch)()

	m, cmd := update(t, m, msg)
	if cmd == nil {
		t.Error("the listener must be re-armed")
	}
	last := m.Feed().Entries[len(m.Feed().Entries)-1]
	if last.Type != EntryRetry || !strings.Contains(last.Title, "Attempt 1/3") {
		t.Errorf("unexpected entry %+v", last)
	}
}

func TestQuitAbortsRecording(t *testing.T) {
	f := newFixture(t, "", nil)
	m := f.model(nil)
	m, _ = update(t, m, keySpace)

	m, cmd := update(t, m, keyQuit)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !f.capture.aborted {
		t.Error("capture should be aborted on quit")
	}
	if f.ctrl.State() != session.Stopped {
		t.Errorf("expected Stopped, got %s", f.ctrl.State())
	}
	if !strings.Contains(m.View(), "Goodbye") {
		t.Error("expected goodbye view")
	}
}

func TestWindowResize(t *testing.T) {
	f := newFixture(t, "", nil)
	m, _ := update(t, f.model(nil), tea.WindowSizeMsg{Width: 120, Height: 40})

	if m.output.Width != 116 {
		t.Errorf("expected output width 116, got %d", m.output.Width)
	}
	if m.feed.Viewport.Height+m.output.Height != 30 {
		t.Errorf("expected 30 rows split between panes, got %d", m.feed.Viewport.Height+m.output.Height)
	}
}

func TestFormatTimer(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{999 * time.Millisecond, "00:00"},
		{65 * time.Second, "01:05"},
		{61*time.Minute + 1*time.Second, "61:01"},
		{-time.Second, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatTimer(tt.d); got != tt.want {
			t.Errorf("FormatTimer(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFeedTrimsOldEntries(t *testing.T) {
	feed := NewFeed(40, 5)
	feed.MaxEntries = 3
	for i := 0; i < 5; i++ {
		feed.AddInfo("event")
	}
	if len(feed.Entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(feed.Entries))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo\nworld", 20); got != "héllo world" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("unexpected %q", got)
	}
}
