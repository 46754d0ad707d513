// Package compress re-encodes recorded videos at a quality tier.
package compress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const fileScheme = "file://"

// Quality is the compression aggressiveness, independent of capture resolution
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

var Qualities = []Quality{QualityLow, QualityMedium, QualityHigh}

// ParseQuality accepts low, medium or high
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", fmt.Errorf("invalid quality %q (valid: low, medium, high)", s)
}

// Next cycles low -> medium -> high -> low
func (q Quality) Next() Quality {
	switch q {
	case QualityLow:
		return QualityMedium
	case QualityMedium:
		return QualityHigh
	}
	return QualityLow
}

// CRF returns the x264 constant rate factor for the tier
func (q Quality) CRF() int {
	switch q {
	case QualityLow:
		return 32
	case QualityHigh:
		return 23
	}
	return 28
}

// maxHeight caps the output height in auto mode; 0 keeps the source size
func (q Quality) maxHeight() int {
	switch q {
	case QualityLow:
		return 720
	case QualityMedium:
		return 1080
	}
	return 0
}

// Method selects how settings are derived: "auto" also downscales by tier, "manual" only sets the CRF
type Method string

const (
	MethodAuto   Method = "auto"
	MethodManual Method = "manual"
)

type Options struct {
	Method  Method
	Quality Quality
}

// OutputSize returns the frame size Compress produces for a width x height input
func (o Options) OutputSize(width, height int) (int, int) {
	quality := o.Quality
	if quality == "" {
		quality = QualityMedium
	}
	maxH := quality.maxHeight()
	if o.Method == MethodManual || maxH == 0 || height <= maxH || width <= 0 {
		return width, height
	}
	// scale=-2 keeps the aspect ratio with an even width
	w := (width*maxH + height/2) / height
	return w - w%2, maxH
}

// Error reports a failed compression of Path
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compression of %s failed: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Compressor produces a compressed copy of a video and returns its path
type Compressor interface {
	Compress(ctx context.Context, path string, opts Options) (string, error)
}

// FFmpeg compresses with libx264. The output is written next to the input as
// <name>_compressed.mp4; file:// inputs produce file:// outputs.
type FFmpeg struct{}

func New() *FFmpeg {
	return &FFmpeg{}
}

func (f *FFmpeg) Compress(ctx context.Context, path string, opts Options) (string, error) {
	isURI := strings.HasPrefix(path, fileScheme)
	inputFile := strings.TrimPrefix(path, fileScheme)

	if _, err := os.Stat(inputFile); err != nil {
		return "", &Error{Path: path, Err: fmt.Errorf("input file not found: %w", err)}
	}

	base := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	outputFile := filepath.Join(filepath.Dir(inputFile), base+"_compressed.mp4")
	os.Remove(outputFile)

	cmd := exec.CommandContext(ctx, "ffmpeg", buildArgs(inputFile, outputFile, opts)...)
	slog.Debug("Running FFmpeg for compression", "command", strings.Join(cmd.Args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputFile)
		return "", &Error{Path: path, Err: fmt.Errorf("FFmpeg compression failed: %w\nOutput: %s", err, string(output))}
	}

	if _, err := os.Stat(outputFile); err != nil {
		return "", &Error{Path: path, Err: fmt.Errorf("output file not created: %s", outputFile)}
	}

	slog.Info("Compressed video saved to", "file", outputFile, "quality", opts.Quality)
	if isURI {
		return fileScheme + outputFile, nil
	}
	return outputFile, nil
}

func buildArgs(inputFile, outputFile string, opts Options) []string {
	quality := opts.Quality
	if quality == "" {
		quality = QualityMedium
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", inputFile,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(quality.CRF()),
		"-pix_fmt", "yuv420p",
	}

	if opts.Method != MethodManual {
		if h := quality.maxHeight(); h > 0 {
			// Never upscale; keep width even for yuv420p
			args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", h))
		}
	}

	args = append(args,
		"-c:a", "aac", "-b:a", "128k",
		"-map_metadata", "0",
		"-movflags", "+faststart",
		"-y",
		outputFile,
	)
	return args
}
