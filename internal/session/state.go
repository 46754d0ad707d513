package session

import (
	"errors"
	"time"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/device"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/location"
)

// State is the user-level recording session state
type State string

const (
	StateIdle         State = "IDLE"
	StateInitializing State = "INITIALIZING"
	StateRecording    State = "RECORDING"
	StatePaused       State = "PAUSED"
	StateStopping     State = "STOPPING"
	StateFinalizing   State = "FINALIZING"
	StateFailed       State = "FAILED"
)

// inFlight reports whether a transition is waiting for the device or the pipeline
func (s State) inFlight() bool {
	return s == StateInitializing || s == StateStopping || s == StateFinalizing
}

var (
	// ErrBusy rejects a request while another transition is in flight
	ErrBusy = errors.New("a recording transition is in progress")
	// ErrNotIdle rejects camera or resolution changes outside Idle
	ErrNotIdle = errors.New("only allowed while no recording is in progress")
	// ErrDeviceNotReady is transient; the caller gets a "please wait" notice
	ErrDeviceNotReady = errors.New("camera is not ready")
	// ErrPermissionDenied means camera or microphone access was not granted
	ErrPermissionDenied = errors.New("camera and microphone permissions are required")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrClosed           = errors.New("session is closed")
)

// Settings are the user-selectable capture options
type Settings struct {
	ResolutionTier         format.ResolutionTier `json:"resolution_tier"`
	QualityTier            compress.Quality      `json:"quality_tier"`
	LocationTaggingEnabled bool                  `json:"location_tagging_enabled"`
}

// Status is a read-only snapshot of the session
type Status struct {
	State          State              `json:"state"`
	Position       device.Position    `json:"position"`
	Ready          bool               `json:"ready"`
	Permitted      bool               `json:"permitted"`
	Focused        bool               `json:"focused"`
	SelectedFormat *format.Format     `json:"selected_format,omitempty"`
	Settings       Settings           `json:"settings"`
	ElapsedMs      int64              `json:"elapsed_ms"`
	Elapsed        string             `json:"elapsed"`
	Clock          string             `json:"clock"`
	Location       *location.Snapshot `json:"location,omitempty"`
	LastThumbnail  string             `json:"last_thumbnail,omitempty"`
	LastSizeMB     *float64           `json:"last_size_mb,omitempty"`
	LastResolution string             `json:"last_resolution,omitempty"`
}

// Recording reports whether a capture is running or paused
func (s Status) Recording() bool {
	return s.State == StateRecording || s.State == StatePaused
}

// NoticeKind classifies user-facing messages
type NoticeKind string

const (
	NoticePleaseWait      NoticeKind = "please_wait"
	NoticePermission      NoticeKind = "permission_denied"
	NoticeStartFailed     NoticeKind = "start_failed"
	NoticeRecordingFailed NoticeKind = "recording_failed"
	NoticeStopFailed      NoticeKind = "stop_failed"
	NoticePauseFailed     NoticeKind = "pause_failed"
	NoticeResumeFailed    NoticeKind = "resume_failed"
	NoticeSaved           NoticeKind = "saved"
	NoticeSaveFailed      NoticeKind = "save_failed"
)

// Notice is a message for the user
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// EventType distinguishes what an Event carries
type EventType string

const (
	EventState  EventType = "state"
	EventNotice EventType = "notice"
	EventTick   EventType = "tick"
)

// Event is delivered to subscribers on every state change, notice and timer tick
type Event struct {
	Type   EventType `json:"type"`
	State  State     `json:"state"`
	Notice *Notice   `json:"notice,omitempty"`
}
