package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"dictate/session"
	"dictate/whisper"
)

// EntryType is the kind of an activity feed entry
type EntryType string

const (
	EntryRecording EntryType = "recording"
	EntryRequest   EntryType = "request"
	EntryRetry     EntryType = "retry"
	EntryResult    EntryType = "result"
	EntryError     EntryType = "error"
	EntryInfo      EntryType = "info"
)

// FeedEntry is one line of the activity feed
type FeedEntry struct {
	Timestamp time.Time
	Type      EntryType
	Title     string

	// Detail is rendered muted after the title
	Detail string
}

// Feed is a scrolling, timestamped log of what the recorder is doing
type Feed struct {
	Entries    []FeedEntry
	Viewport   viewport.Model
	MaxEntries int

	now func() time.Time
}

// NewFeed creates a feed with the given dimensions
func NewFeed(width, height int) *Feed {
	return &Feed{
		Viewport:   viewport.New(width, height),
		MaxEntries: 100,
		now:        time.Now,
	}
}

// Add appends an entry and scrolls to it
func (f *Feed) Add(e FeedEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = f.now()
	}
	f.Entries = append(f.Entries, e)
	if f.MaxEntries > 0 && len(f.Entries) > f.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-f.MaxEntries:]
	}
	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// AddInfo records a neutral event
func (f *Feed) AddInfo(title string, detail ...string) {
	f.Add(FeedEntry{Type: EntryInfo, Title: title, Detail: strings.Join(detail, " ")})
}

// AddError records a failure
func (f *Feed) AddError(title string, err error) {
	e := FeedEntry{Type: EntryError, Title: title}
	if err != nil {
		e.Detail = err.Error()
	}
	f.Add(e)
}

// AddRecording records the start of capture
func (f *Feed) AddRecording(path string) {
	f.Add(FeedEntry{Type: EntryRecording, Title: "Recording started", Detail: path})
}

// AddRequest records the hand-off of an artifact to the worker
func (f *Feed) AddRequest(model string, recorded time.Duration) {
	title := "Transcribing"
	if model != "" {
		title += " with " + model
	}
	f.Add(FeedEntry{Type: EntryRequest, Title: title, Detail: "(" + FormatTimer(recorded) + " of audio)"})
}

// AddRetry records a failed attempt that will be retried
func (f *Feed) AddRetry(ev whisper.RetryEvent) {
	f.Add(FeedEntry{
		Type:   EntryRetry,
		Title:  fmt.Sprintf("Attempt %d/%d failed, retrying in %s", ev.Attempt, ev.MaxAttempts, formatDuration(ev.Delay)),
		Detail: ev.Err.Error(),
	})
}

// AddResult records the end of a cycle
func (f *Feed) AddResult(r session.Result, latency time.Duration) {
	if r.OK() {
		f.Add(FeedEntry{
			Type:   EntryResult,
			Title:  fmt.Sprintf("Transcribed %d characters", len(r.Text)),
			Detail: "(" + formatDuration(latency) + ")",
		})
		return
	}
	f.Add(FeedEntry{Type: EntryError, Title: r.Status, Detail: r.Err.Error()})
}

// SetSize updates the feed dimensions
func (f *Feed) SetSize(width, height int) {
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// View returns the viewport view for Bubble Tea
func (f *Feed) View() string {
	return f.Viewport.View()
}

// Render renders every entry, one per line
func (f *Feed) Render() string {
	if len(f.Entries) == 0 {
		return MutedStyle.Render("Press space to start recording")
	}

	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		lines = append(lines, renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func renderEntry(e FeedEntry) string {
	icon, style := entryStyle(e.Type)
	line := fmt.Sprintf("%s %s %s",
		MutedStyle.Render(e.Timestamp.Format("15:04:05")),
		style.Render(icon),
		style.Render(e.Title),
	)
	if e.Detail != "" {
		line += " " + MutedStyle.Render(truncate(e.Detail, 120))
	}
	return line
}

func entryStyle(t EntryType) (string, lipgloss.Style) {
	switch t {
	case EntryRecording:
		return "[o]", lipgloss.NewStyle().Foreground(ColorLive)
	case EntryRequest:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case EntryRetry:
		return "[~]", lipgloss.NewStyle().Foreground(ColorWarning)
	case EntryResult:
		return "[<]", lipgloss.NewStyle().Foreground(ColorSuccess)
	case EntryError:
		return "[!]", lipgloss.NewStyle().Foreground(ColorError)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorPrimary)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
