package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"dictate/clipboard"
	"dictate/refine"
	"dictate/session"
	"dictate/whisper"
)

// Options wires the recorder UI to its collaborators
type Options struct {
	Controller *session.Controller
	Clipboard  clipboard.Sink

	// Refiner may be nil; the refine key is hidden when it is unavailable
	Refiner refine.Refiner

	// Retries delivers retry notifications from the transcription client
	Retries <-chan whisper.RetryEvent

	// Model is shown in the header
	Model string

	// APIKeyHelp is shown in degraded mode
	APIKeyHelp string

	Log zerolog.Logger
}

type statusLevel int

const (
	statusInfo statusLevel = iota
	statusSuccess
	statusWarning
	statusError
)

// tickMsg drives the recording timer. gen identifies the recording that
// armed it; ticks from an earlier recording are dropped.
type tickMsg struct {
	gen int
	at  time.Time
}

// retryMsg forwards a retry notification from the worker goroutine
type retryMsg whisper.RetryEvent

// copiedMsg reports the outcome of a clipboard write
type copiedMsg struct {
	err error
}

// refinedMsg carries the output of the refinement tool
type refinedMsg struct {
	text string
	err  error
}

// Model is the Bubble Tea model for the recorder
type Model struct {
	ctx  context.Context
	opts Options

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	output  viewport.Model
	feed    *Feed

	status      string
	statusLevel statusLevel
	text        string

	refining        bool
	elapsed         time.Duration
	processingStart time.Time
	recordGen       int

	width    int
	height   int
	quitting bool

	now func() time.Time
}

// New creates the recorder model. ctx is the process-lifetime context
// handed to workers and the refinement tool.
func New(ctx context.Context, opts Options) Model {
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.Discard{}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	m := Model{
		ctx:     ctx,
		opts:    opts,
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: s,
		output:  viewport.New(76, 8),
		feed:    NewFeed(76, 6),
		width:   80,
		height:  24,
		now:     time.Now,
	}
	m.keys.Refine.SetEnabled(m.refineAvailable())

	if opts.Controller.Degraded() {
		m.setStatus(statusWarning, "No API key configured. Recording is disabled.")
		m.setOutput(opts.APIKeyHelp)
	} else {
		m.setStatus(statusInfo, "Ready")
	}
	m.layout()
	return m
}

// Init starts the spinner and the retry listener
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForRetry(m.opts.Retries))
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if msg.gen != m.recordGen {
			return m, nil
		}
		since := m.opts.Controller.RecordingSince()
		if since.IsZero() {
			return m, nil
		}
		m.elapsed = msg.at.Sub(since)
		return m, tick(m.recordGen)

	case retryMsg:
		ev := whisper.RetryEvent(msg)
		m.feed.AddRetry(ev)
		m.setStatus(statusWarning, "Transcribing... retrying after a failed attempt")
		return m, waitForRetry(m.opts.Retries)

	case session.DoneMsg:
		return m.handleDone(msg.Result)

	case copiedMsg:
		switch {
		case msg.err == nil:
			m.setStatus(statusSuccess, "Copied to clipboard")
		case errors.Is(msg.err, clipboard.ErrUnavailable):
			m.setStatus(statusWarning, "Transcribed, but no clipboard tool is installed (xclip, xsel or wl-copy)")
		default:
			m.setStatus(statusWarning, "Transcribed, but copying failed")
			m.feed.AddError("Clipboard", msg.err)
		}
		return m, nil

	case refinedMsg:
		m.refining = false
		if msg.err != nil {
			m.setStatus(statusError, "Refinement failed")
			m.feed.AddError("Refinement failed", msg.err)
			return m, nil
		}
		m.text = msg.text
		m.setOutput(msg.text)
		m.feed.AddInfo("Refined transcript", fmt.Sprintf("(%d characters)", len(msg.text)))
		m.setStatus(statusInfo, "Refined, copying...")
		return m, publish(m.opts.Clipboard, msg.text)
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.opts.Controller.Abort()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		return m.toggle()

	case key.Matches(msg, m.keys.Refine):
		return m.startRefine()

	case key.Matches(msg, m.keys.Copy):
		if m.text == "" || m.opts.Controller.State() != session.Stopped {
			return m, nil
		}
		return m, publish(m.opts.Clipboard, m.text)

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) toggle() (tea.Model, tea.Cmd) {
	ctrl := m.opts.Controller
	before := ctrl.State()

	job, err := ctrl.Toggle(m.ctx)
	switch {
	case errors.Is(err, session.ErrBusy):
		m.opts.Log.Debug().Msg("toggle while busy")
		return m, nil

	case errors.Is(err, session.ErrNoAPIKey):
		m.setStatus(statusWarning, "No API key configured. Run \"dictate setup\".")
		return m, nil

	case err != nil:
		m.setStatus(statusError, "Could not start recording")
		m.setOutput(err.Error())
		m.feed.AddError("Capture failed", err)
		return m, nil

	case job != nil:
		m.elapsed = job.Recorded
		m.processingStart = m.now()
		m.setStatus(statusInfo, "Transcribing...")
		m.feed.AddRequest(m.opts.Model, job.Recorded)
		return m, job.Cmd(m.ctx)

	default:
		if before != session.Stopped {
			return m, nil
		}
		m.elapsed = 0
		m.recordGen++
		m.setStatus(statusInfo, "Recording... press space to stop")
		m.feed.AddRecording(ctrl.ArtifactPath())
		return m, tick(m.recordGen)
	}
}

// handleDone completes the cycle on the UI goroutine and forwards the
// transcript to the clipboard.
func (m Model) handleDone(r session.Result) (tea.Model, tea.Cmd) {
	m.opts.Controller.Complete(r)
	m.feed.AddResult(r, m.now().Sub(m.processingStart))

	if !r.OK() {
		// Copy and refine act on the pane's text, which is now the error
		m.text = ""
		m.setStatus(statusError, r.Status)
		m.setOutput(r.Message)
		return m, nil
	}

	m.text = r.Text
	m.setOutput(r.Text)
	if r.Text == "" {
		m.setStatus(statusWarning, "The service returned an empty transcript")
		return m, nil
	}
	m.setStatus(statusInfo, "Copying...")
	return m, publish(m.opts.Clipboard, r.Text)
}

func (m Model) startRefine() (tea.Model, tea.Cmd) {
	if !m.refineAvailable() || m.refining || m.text == "" {
		return m, nil
	}
	if m.opts.Controller.State() != session.Stopped {
		return m, nil
	}

	m.refining = true
	m.setStatus(statusInfo, "Refining...")
	m.feed.AddInfo("Refining transcript")

	refiner, ctx, text := m.opts.Refiner, m.ctx, m.text
	return m, func() tea.Msg {
		out, err := refiner.Refine(ctx, text)
		return refinedMsg{text: out, err: err}
	}
}

func (m Model) refineAvailable() bool {
	return m.opts.Refiner != nil && m.opts.Refiner.Available()
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return MutedStyle.Render("Goodbye!\n")
	}

	state := m.opts.Controller.State()
	var b strings.Builder

	b.WriteString(RenderHeader(m.opts.Model, state))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(state))
	b.WriteString("\n")

	box := BoxStyle
	if state == session.Recording {
		box = LiveBoxStyle
	}
	b.WriteString(SectionTitleStyle.Render("Transcript"))
	b.WriteString("\n")
	b.WriteString(box.Render(m.output.View()))
	b.WriteString("\n")

	b.WriteString(SectionTitleStyle.Render("Activity"))
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.feed.View()))
	b.WriteString("\n")

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderStatus(state session.State) string {
	var prefix string
	switch {
	case state == session.Recording:
		prefix = TimerStyle.Render("● "+FormatTimer(m.elapsed)) + "  "
	case state == session.Processing || m.refining:
		prefix = m.spinner.View() + " "
	}

	var style lipgloss.Style
	switch m.statusLevel {
	case statusSuccess:
		style = SuccessStyle
	case statusWarning:
		style = WarningStyle
	case statusError:
		style = ErrorStyle
	default:
		style = InfoStyle
	}
	return prefix + style.Render(m.status)
}

func (m *Model) setStatus(level statusLevel, status string) {
	m.statusLevel = level
	m.status = status
}

func (m *Model) setOutput(text string) {
	m.output.SetContent(lipgloss.NewStyle().Width(m.output.Width).Render(text))
	m.output.GotoTop()
}

// layout splits the window between the transcript and the feed
func (m *Model) layout() {
	inner := m.width - 4
	if inner < 20 {
		inner = 20
	}
	// header, status, two section titles, help and four border rows
	free := m.height - 10
	if free < 6 {
		free = 6
	}
	feedHeight := free / 3
	if feedHeight < 3 {
		feedHeight = 3
	}

	m.output.Width = inner
	m.output.Height = free - feedHeight
	m.feed.SetSize(inner, feedHeight)
	m.help.Width = m.width
}

// Getters for tests and the caller
func (m Model) Status() string { return m.status }
func (m Model) Text() string   { return m.text }
func (m Model) Feed() *Feed    { return m.feed }

func tick(gen int) tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{gen: gen, at: t}
	})
}

// waitForRetry blocks on the retry channel from the Bubble Tea command
// goroutine. It is re-issued after every event.
func waitForRetry(ch <-chan whisper.RetryEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return retryMsg(ev)
	}
}

func publish(sink clipboard.Sink, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: sink.Publish(text)}
	}
}

// Run starts the recorder UI and blocks until it exits
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
