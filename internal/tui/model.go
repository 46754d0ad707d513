// Package tui is the terminal camera screen. Terminal focus maps onto the
// session's Focus and Blur so timers and the camera follow the window.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/audiolibrelab/camcapture/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controls is the part of the service the screen drives
type Controls interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
	Status() (session.Status, error)
	Subscribe() (<-chan session.Event, func())
	Focus() error
	Blur() error
	SwitchCamera() error
	ToggleResolution() error
	ToggleQuality() error
	SetLocationTagging(enabled bool) error
}

// EventMsg carries one session event
type EventMsg struct {
	Event session.Event
}

// StatusMsg carries a fresh status snapshot
type StatusMsg struct {
	Status session.Status
	Err    error
}

// ActionDone reports the result of a key-triggered operation
type ActionDone struct {
	Action string
	Err    error
}

// SessionClosed is sent when the event stream ends
type SessionClosed struct{}

// Model is the camera screen
type Model struct {
	ctrl        Controls
	events      <-chan session.Event
	unsubscribe func()

	status session.Status
	notice *session.Notice
	err    error
	width  int
	height int
}

// New subscribes to ctrl and returns the screen model
func New(ctrl Controls) Model {
	events, unsubscribe := ctrl.Subscribe()
	return Model{ctrl: ctrl, events: events, unsubscribe: unsubscribe}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.focus(), m.waitForEvent(), m.fetchStatus())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.FocusMsg:
		return m, m.focus()

	case tea.BlurMsg:
		return m, m.blur()

	case EventMsg:
		if msg.Event.Notice != nil {
			m.notice = msg.Event.Notice
		}
		return m, tea.Batch(m.waitForEvent(), m.fetchStatus())

	case StatusMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.status = msg.Status
		return m, nil

	case ActionDone:
		m.err = nil
		// Refused requests already produce a notice, or are plain state conflicts
		if msg.Err != nil && !quietError(msg.Err) {
			m.err = fmt.Errorf("%s: %w", msg.Action, msg.Err)
		}
		return m, m.fetchStatus()

	case SessionClosed:
		return m, tea.Quit
	}

	return m, nil
}

func quietError(err error) bool {
	return errors.Is(err, session.ErrDeviceNotReady) ||
		errors.Is(err, session.ErrPermissionDenied) ||
		errors.Is(err, session.ErrBusy)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case " ", "enter":
		// Record button: start when idle, stop while recording or paused
		if m.status.Recording() {
			return m, m.run("stop", m.ctrl.Stop)
		}
		return m, m.run("start", m.ctrl.Start)

	case "p":
		switch m.status.State {
		case session.StateRecording:
			return m, m.run("pause", m.ctrl.Pause)
		case session.StatePaused:
			return m, m.run("resume", m.ctrl.Resume)
		}
		return m, nil

	case "c":
		return m, m.run("switch camera", m.ctrl.SwitchCamera)

	case "r":
		return m, m.run("resolution", m.ctrl.ToggleResolution)

	case "k":
		return m, m.run("quality", m.ctrl.ToggleQuality)

	case "l":
		enabled := !m.status.Settings.LocationTaggingEnabled
		return m, m.run("location", func() error { return m.ctrl.SetLocationTagging(enabled) })

	case "esc":
		m.notice = nil
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m Model) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionDone{Action: action, Err: fn()}
	}
}

func (m Model) focus() tea.Cmd {
	return m.run("focus", m.ctrl.Focus)
}

func (m Model) blur() tea.Cmd {
	return m.run("blur", m.ctrl.Blur)
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return SessionClosed{}
		}
		return EventMsg{Event: ev}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		st, err := m.ctrl.Status()
		return StatusMsg{Status: st, Err: err}
	}
}

func (m Model) View() string {
	st := m.status
	var b strings.Builder

	// Top bar: state, camera, clock
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		badgeFor(string(st.State)).Render(string(st.State)),
		" ",
		mutedStyle.Render(fmt.Sprintf("camera: %s", st.Position)),
		"  ",
		mutedStyle.Render(st.Clock),
	)
	b.WriteString(top + "\n")

	elapsed := st.Elapsed
	if elapsed == "" {
		elapsed = "00:00"
	}
	b.WriteString(elapsedStyle.Render(elapsed) + "\n")

	if lines := m.overlayLines(); len(lines) > 0 {
		b.WriteString(overlayStyle.Render(strings.Join(lines, "\n")) + "\n")
	}

	format := "-"
	if st.SelectedFormat != nil {
		format = st.SelectedFormat.String()
	}
	location := "off"
	if st.Settings.LocationTaggingEnabled {
		location = "on"
	}
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n",
		mutedStyle.Render("resolution"), settingStyle.Render(string(st.Settings.ResolutionTier)),
		mutedStyle.Render("quality"), settingStyle.Render(string(st.Settings.QualityTier)),
		mutedStyle.Render("location"), settingStyle.Render(location),
		mutedStyle.Render("format"), format,
	))

	if !st.Permitted {
		b.WriteString(mutedStyle.Render("Waiting for camera and microphone permission") + "\n")
	} else if !st.Ready && st.State == session.StateIdle {
		b.WriteString(mutedStyle.Render("Camera is initializing...") + "\n")
	}

	if st.LastThumbnail != "" {
		last := "last video: " + st.LastThumbnail
		if st.LastSizeMB != nil {
			last += fmt.Sprintf(" (%.2f MB)", *st.LastSizeMB)
		}
		b.WriteString(mutedStyle.Render(last) + "\n")
	}

	if m.notice != nil {
		style := noticeStyle
		switch m.notice.Kind {
		case session.NoticeSaved, session.NoticePleaseWait:
		default:
			style = errorNoticeStyle
		}
		b.WriteString(style.Render(m.notice.Title+"\n"+m.notice.Message) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorNoticeStyle.Render("Error\n"+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + help(st))
	return b.String()
}

// overlayLines mirrors what gets burned into the video
func (m Model) overlayLines() []string {
	st := m.status
	var lines []string
	if st.Clock != "" {
		lines = append(lines, st.Clock)
	}
	if st.Settings.LocationTaggingEnabled && st.Location != nil {
		lines = append(lines, st.Location.Lines()...)
	}
	return lines
}

func help(st session.Status) string {
	record := "record"
	if st.Recording() {
		record = "stop"
	}
	pause := "pause"
	if st.State == session.StatePaused {
		pause = "resume"
	}
	keys := []struct{ key, desc string }{
		{"space", record},
		{"p", pause},
		{"c", "camera"},
		{"r", "resolution"},
		{"k", "quality"},
		{"l", "location"},
		{"esc", "dismiss"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpKey.Render(k.key)+" "+mutedStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

// Run shows the screen until the user quits. The terminal reports focus changes.
func Run(ctrl Controls) error {
	p := tea.NewProgram(New(ctrl), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}
