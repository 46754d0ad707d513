// Package permission checks that the current user may use the capture devices
// and write to the media library.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// DeniedError reports a refused permission with a reason the user can act on
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// Checker grants access to capture devices and the media library
type Checker interface {
	RequestCameraAndMicrophone(ctx context.Context) bool
	RequestGalleryAccess(ctx context.Context) error
}

// Access checks permissions with access(2) on device nodes and the library directory
type Access struct {
	VideoDevice string
	Microphone  string // ALSA name; "disabled" or empty skips the check
	LibraryDir  string

	// SoundDir is the ALSA device directory, /dev/snd when empty
	SoundDir string
}

// RequestCameraAndMicrophone reports whether both the camera node and the sound devices are usable
func (a *Access) RequestCameraAndMicrophone(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if err := unix.Access(a.VideoDevice, unix.R_OK|unix.W_OK); err != nil {
		slog.Warn("Camera permission denied", "device", a.VideoDevice, "error", err)
		return false
	}

	if a.Microphone == "" || a.Microphone == "disabled" {
		return true
	}

	soundDir := a.SoundDir
	if soundDir == "" {
		soundDir = "/dev/snd"
	}
	if err := unix.Access(soundDir, unix.R_OK|unix.X_OK); err != nil {
		slog.Warn("Microphone permission denied", "dir", soundDir, "error", err)
		return false
	}

	return true
}

// RequestGalleryAccess creates the library directory if needed and checks it is writable
func (a *Access) RequestGalleryAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.LibraryDir == "" {
		return &DeniedError{Reason: "no library directory configured"}
	}

	if err := os.MkdirAll(a.LibraryDir, 0755); err != nil {
		return &DeniedError{Reason: fmt.Sprintf("cannot create library directory %s: %v", a.LibraryDir, err)}
	}

	if err := unix.Access(a.LibraryDir, unix.W_OK|unix.X_OK); err != nil {
		return &DeniedError{Reason: fmt.Sprintf("library directory %s is not writable, check its ownership", a.LibraryDir)}
	}

	return nil
}
