// Package device binds the camera capture primitive to V4L2/ALSA devices recorded through ffmpeg.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/audiolibrelab/camcapture/internal/format"
)

var (
	ErrInactive         = errors.New("camera is not active")
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrUnknownPosition  = errors.New("no camera configured for position")
)

// Position identifies which camera is used
type Position string

const (
	PositionBack  Position = "back"
	PositionFront Position = "front"
)

// Toggle returns the other position
func (p Position) Toggle() Position {
	if p == PositionFront {
		return PositionBack
	}
	return PositionFront
}

// ParsePosition accepts "back" or "front"
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case PositionBack, PositionFront:
		return Position(s), nil
	}
	return "", fmt.Errorf("invalid camera position %q (valid: back, front)", s)
}

// Overlay describes text burned into the frames
type Overlay struct {
	Timestamp bool
	Lines     []string
}

// RecordOptions configures a single recording
type RecordOptions struct {
	OutputPath  string
	Format      format.Format
	FrameRate   int
	Overlay     *Overlay
	Metadata    map[string]string
	MaxDuration time.Duration
}

// Video is the raw result of a finished recording
type Video struct {
	Path     string
	Width    int
	Height   int
	Duration time.Duration
}

// Camera is an opened capture device. StartRecording reports the outcome of the
// recording through exactly one of onFinished or onError.
type Camera interface {
	Position() Position
	Formats() []format.Format
	SetActive(active bool) error
	Active() bool

	StartRecording(ctx context.Context, opts RecordOptions, onFinished func(Video), onError func(error)) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error

	Close() error
}

// Driver opens cameras by position
type Driver interface {
	Open(ctx context.Context, position Position) (Camera, error)
}
