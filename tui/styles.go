// Package tui is the interactive recorder: a Bubble Tea program whose
// Update loop is the only place UI state and cycle completion are applied.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"dictate/session"
)

// Color palette
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"} // Violet
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"} // Sky blue
	ColorAccent    = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"} // Amber

	ColorSuccess = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#F87171"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#6366F1", Dark: "#818CF8"}

	ColorText   = lipgloss.AdaptiveColor{Light: "#1E293B", Dark: "#F1F5F9"}
	ColorSubtle = lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#94A3B8"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#64748B"}
	ColorBorder = lipgloss.AdaptiveColor{Light: "#CBD5E1", Dark: "#334155"}

	// Recording red, distinct from the error red so a live mic never reads as a failure
	ColorLive = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#FB7185"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	BodyStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	TimerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorLive)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	LiveBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorLive).
			Padding(0, 1)

	SectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorSubtle)

	badgeBase = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true)

	BadgeIdleStyle = badgeBase.
			Background(ColorMuted).
			Foreground(lipgloss.Color("#FFFFFF"))

	BadgeLiveStyle = badgeBase.
			Background(ColorLive).
			Foreground(lipgloss.Color("#FFFFFF"))

	BadgeBusyStyle = badgeBase.
			Background(ColorAccent).
			Foreground(lipgloss.Color("#000000"))
)

// Logo is the application header
const Logo = "dictate"

// RenderHeader renders the title line with the state badge
func RenderHeader(model string, state session.State) string {
	title := TitleStyle.Render("( o ) " + Logo)
	sub := MutedStyle.Render("  speech to clipboard")
	if model != "" {
		sub += MutedStyle.Render(" via " + model)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, sub, "  ", StateBadge(state))
}

// StateBadge renders the recorder state as a colored badge
func StateBadge(state session.State) string {
	switch state {
	case session.Recording:
		return BadgeLiveStyle.Render("REC")
	case session.Processing:
		return BadgeBusyStyle.Render("BUSY")
	default:
		return BadgeIdleStyle.Render("IDLE")
	}
}

// FormatTimer renders a recording duration as mm:ss
func FormatTimer(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
