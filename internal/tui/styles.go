package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("62")
	colorMuted     = lipgloss.Color("241")
	colorHighlight = lipgloss.Color("212")
	colorRecording = lipgloss.Color("196")
	colorPaused    = lipgloss.Color("214")
	colorSuccess   = lipgloss.Color("78")
)

var stateBadge = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

var elapsedStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Padding(1, 2)

var overlayStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

var settingStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

var mutedStyle = lipgloss.NewStyle().
	Foreground(colorMuted)

var noticeStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorHighlight).
	Padding(0, 1)

var errorNoticeStyle = noticeStyle.
	BorderForeground(colorRecording)

var helpKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// badgeFor colors the state badge by session state
func badgeFor(state string) lipgloss.Style {
	switch state {
	case "RECORDING":
		return stateBadge.Background(colorRecording)
	case "PAUSED":
		return stateBadge.Background(colorPaused).Foreground(lipgloss.Color("0"))
	case "FINALIZING", "STOPPING":
		return stateBadge.Background(colorSuccess).Foreground(lipgloss.Color("0"))
	}
	return stateBadge
}
