package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/format"
)

const (
	stopTimeout   = 5 * time.Second
	minOutputSize = 1024
	stderrTail    = 20
)

// FFmpegDriver opens the cameras declared in the configuration
type FFmpegDriver struct {
	cameras  []config.Camera
	listFunc func(ctx context.Context, device string) ([]format.Format, error)
	micFunc  func(ctx context.Context) ([]string, error)
}

// NewFFmpegDriver creates a driver for the configured cameras
func NewFFmpegDriver(cfg *config.Config) *FFmpegDriver {
	return &FFmpegDriver{
		cameras:  cfg.Cameras,
		listFunc: ListFormats,
		micFunc:  ListMicrophones,
	}
}

// Open resolves the camera at position and probes its formats. A camera whose
// formats cannot be listed is still returned with an empty format list.
func (d *FFmpegDriver) Open(ctx context.Context, position Position) (Camera, error) {
	var cam *config.Camera
	for i := range d.cameras {
		if d.cameras[i].Position == string(position) {
			cam = &d.cameras[i]
			break
		}
	}
	if cam == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, position)
	}

	if _, err := os.Stat(cam.Device); err != nil {
		return nil, fmt.Errorf("camera device %s unavailable: %w", cam.Device, err)
	}

	formats, err := d.listFunc(ctx, cam.Device)
	if err != nil {
		slog.Warn("Could not list camera formats", "device", cam.Device, "error", err)
		formats = nil
	}

	microphone := resolveMicrophone(ctx, cam.Microphone, d.micFunc)

	slog.Debug("Camera opened", "position", position, "device", cam.Device, "microphone", microphone, "formats", len(formats))
	return &ffmpegCamera{
		position:   position,
		device:     cam.Device,
		microphone: microphone,
		formats:    formats,
	}, nil
}

// ffmpegCamera records one V4L2 device (plus an optional ALSA microphone) with ffmpeg.
// Pause and resume suspend the ffmpeg process with SIGSTOP/SIGCONT. Deactivating
// the camera during a recording suspends it the same way, independently of a
// user pause, so the process only continues once both are lifted.
type ffmpegCamera struct {
	position   Position
	device     string
	microphone string
	formats    []format.Format

	mu            sync.Mutex
	active        bool
	closed        bool
	cmd           *exec.Cmd
	done          chan struct{}
	paused        bool // user pause
	suspended     bool // camera deactivated
	pausedAt      time.Time
	pausedTotal   time.Duration
	stopRequested bool
	stderr        *tailBuffer
}

func (c *ffmpegCamera) Position() Position { return c.position }

func (c *ffmpegCamera) Formats() []format.Format {
	out := make([]format.Format, len(c.formats))
	copy(out, c.formats)
	return out
}

func (c *ffmpegCamera) SetActive(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("camera %s is closed", c.position)
	}
	c.active = active

	if c.cmd == nil || c.stopRequested || c.suspended == !active {
		return nil
	}
	wasFrozen := c.frozen()
	c.suspended = !active
	if err := c.applyFreeze(wasFrozen); err != nil {
		c.suspended = !c.suspended
		return err
	}
	slog.Debug("Camera activity changed during recording", "position", c.position, "active", active)
	return nil
}

// frozen reports whether the ffmpeg process should be stopped
func (c *ffmpegCamera) frozen() bool {
	return c.paused || c.suspended
}

// applyFreeze signals the process when its frozen state changed from wasFrozen.
// Frozen time is excluded from the recording duration.
func (c *ffmpegCamera) applyFreeze(wasFrozen bool) error {
	now := c.frozen()
	switch {
	case now && !wasFrozen:
		if err := c.cmd.Process.Signal(unix.SIGSTOP); err != nil {
			return fmt.Errorf("failed to suspend FFmpeg: %w", err)
		}
		c.pausedAt = time.Now()
	case !now && wasFrozen:
		if err := c.cmd.Process.Signal(unix.SIGCONT); err != nil {
			return fmt.Errorf("failed to continue FFmpeg: %w", err)
		}
		c.pausedTotal += time.Since(c.pausedAt)
	}
	return nil
}

func (c *ffmpegCamera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *ffmpegCamera) StartRecording(ctx context.Context, opts RecordOptions, onFinished func(Video), onError func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return ErrInactive
	}
	if c.cmd != nil {
		return ErrAlreadyRecording
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}

	overlayFile := ""
	if opts.Overlay != nil && len(opts.Overlay.Lines) > 0 {
		overlayFile = opts.OutputPath + ".overlay.txt"
		if err := os.WriteFile(overlayFile, []byte(strings.Join(opts.Overlay.Lines, "\n")), 0644); err != nil {
			return fmt.Errorf("failed to write overlay text: %w", err)
		}
	}

	os.Remove(opts.OutputPath)

	args := buildRecordArgs(c.device, c.microphone, opts, overlayFile)
	slog.Info("Starting camera FFmpeg", "command", "ffmpeg "+strings.Join(args, " "))

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if overlayFile != "" {
			os.Remove(overlayFile)
		}
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	c.cmd = cmd
	c.done = make(chan struct{})
	c.paused = false
	c.suspended = false
	c.pausedTotal = 0
	c.stopRequested = false
	c.stderr = newTailBuffer(stderrTail)

	// Pipes must be drained before cmd.Wait closes them
	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); readOutput(stdout, nil, "stdout") }()
	go func() { defer readers.Done(); readOutput(stderr, c.stderr, "stderr") }()
	go c.wait(cmd, &readers, c.done, c.stderr, time.Now(), opts, overlayFile, onFinished, onError)

	return nil
}

// wait owns cmd.Wait and reports the outcome through exactly one callback
func (c *ffmpegCamera) wait(cmd *exec.Cmd, readers *sync.WaitGroup, done chan struct{}, tail *tailBuffer, started time.Time, opts RecordOptions, overlayFile string, onFinished func(Video), onError func(error)) {
	readers.Wait()
	waitErr := cmd.Wait()

	c.mu.Lock()
	stopRequested := c.stopRequested
	if c.frozen() {
		c.pausedTotal += time.Since(c.pausedAt)
	}
	duration := time.Since(started) - c.pausedTotal
	c.cmd = nil
	c.paused = false
	c.suspended = false
	close(done)
	c.mu.Unlock()

	if overlayFile != "" {
		os.Remove(overlayFile)
	}

	if err := exitError(waitErr, stopRequested); err != nil {
		slog.Debug("FFmpeg stderr", "output", tail.String())
		onError(fmt.Errorf("%w (%s)", err, tail.Last()))
		return
	}

	if err := validateOutputFile(opts.OutputPath); err != nil {
		onError(err)
		return
	}

	if opts.MaxDuration > 0 && duration > opts.MaxDuration {
		duration = opts.MaxDuration
	}

	slog.Debug("Camera recording finished", "output", opts.OutputPath, "duration", duration)
	onFinished(Video{
		Path:     opts.OutputPath,
		Width:    opts.Format.Width,
		Height:   opts.Format.Height,
		Duration: duration,
	})
}

func (c *ffmpegCamera) PauseRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.stopRequested {
		return ErrNotRecording
	}
	if c.paused {
		return nil
	}
	wasFrozen := c.frozen()
	c.paused = true
	if err := c.applyFreeze(wasFrozen); err != nil {
		c.paused = false
		return fmt.Errorf("failed to pause FFmpeg: %w", err)
	}
	slog.Debug("Camera recording paused", "position", c.position)
	return nil
}

func (c *ffmpegCamera) ResumeRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.stopRequested {
		return ErrNotRecording
	}
	if !c.paused {
		return nil
	}
	wasFrozen := c.frozen()
	c.paused = false
	if err := c.applyFreeze(wasFrozen); err != nil {
		c.paused = true
		return fmt.Errorf("failed to resume FFmpeg: %w", err)
	}
	slog.Debug("Camera recording resumed", "position", c.position)
	return nil
}

// StopRecording asks ffmpeg to finalize the file. The outcome arrives through
// the callbacks given to StartRecording; ffmpeg is killed if it does not exit in time.
func (c *ffmpegCamera) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return ErrNotRecording
	}
	if c.stopRequested {
		return nil
	}

	process := c.cmd.Process
	if c.frozen() {
		// A stopped process cannot handle SIGINT
		if err := process.Signal(unix.SIGCONT); err != nil {
			return fmt.Errorf("failed to resume FFmpeg before stop: %w", err)
		}
		c.pausedTotal += time.Since(c.pausedAt)
		c.paused = false
		c.suspended = false
	}

	slog.Debug("Sending SIGINT to FFmpeg process")
	if err := process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to FFmpeg, falling back to SIGKILL", "error", err)
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to stop FFmpeg: %w", err)
		}
	}
	c.stopRequested = true

	done := c.done
	go func() {
		select {
		case <-done:
		case <-time.After(stopTimeout):
			slog.Warn("FFmpeg did not exit within timeout, force killing")
			process.Kill()
		}
	}()

	return nil
}

func (c *ffmpegCamera) Close() error {
	c.mu.Lock()
	c.closed = true
	c.active = false
	cmd := c.cmd
	done := c.done
	if cmd != nil {
		c.stopRequested = true
	}
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(unix.SIGCONT)
		cmd.Process.Kill()
		<-done
	}

	slog.Debug("Camera closed", "position", c.position)
	return nil
}

// buildRecordArgs constructs the ffmpeg arguments for one recording
func buildRecordArgs(device, microphone string, opts RecordOptions, overlayFile string) []string {
	args := []string{"-hide_banner", "-loglevel", ffmpegLogLevel(), "-nostdin"}

	args = append(args, "-f", "v4l2")
	if opts.Format.PixelFormat != "" {
		args = append(args, "-input_format", opts.Format.PixelFormat)
	}
	if opts.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(opts.FrameRate))
	}
	if opts.Format.Width > 0 && opts.Format.Height > 0 {
		args = append(args, "-video_size", opts.Format.Size())
	}
	args = append(args, "-i", device)

	hasAudio := microphone != "" && microphone != MicrophoneDisabled
	if hasAudio {
		args = append(args, "-f", "alsa", "-i", microphone)
	}

	if filter := overlayFilter(opts.Overlay, overlayFile); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p")
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}

	if opts.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(opts.MaxDuration.Seconds(), 'f', 3, 64))
	}

	keys := make([]string, 0, len(opts.Metadata))
	for k := range opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-metadata", k+"="+opts.Metadata[k])
	}

	if strings.HasSuffix(opts.OutputPath, ".mp4") {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, "-y", opts.OutputPath)
	return args
}

// overlayFilter burns the wall clock and the overlay text file into the frames
func overlayFilter(overlay *Overlay, overlayFile string) string {
	if overlay == nil {
		return ""
	}

	const box = "fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=6"
	var filters []string
	if overlay.Timestamp {
		filters = append(filters, "drawtext=text='%{localtime}':fontsize=28:"+box+":x=16:y=16")
	}
	if overlayFile != "" {
		filters = append(filters, "drawtext=textfile='"+escapeFilterValue(overlayFile)+"':fontsize=22:"+box+":x=16:y=h-th-16")
	}
	return strings.Join(filters, ",")
}

func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(s)
}

func ffmpegLogLevel() string {
	if level := os.Getenv("FFMPEG_LOGLEVEL"); level != "" {
		return level
	}
	return "warning"
}

// exitError maps the ffmpeg exit status to an error. Interrupt-driven exits
// are normal once a stop was requested.
func exitError(err error, stopRequested bool) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if stopRequested && errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				return nil
			}
		}
	}
	return fmt.Errorf("FFmpeg process failed: %w", err)
}

func validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() < minOutputSize {
		return fmt.Errorf("recording failed: file too small (%d bytes)", info.Size())
	}
	return nil
}

// readOutput drains a pipe into the debug log and an optional tail buffer
func readOutput(pipe io.ReadCloser, tail *tailBuffer, label string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if tail != nil {
			tail.Add(line)
		}
		slog.Debug("FFmpeg output", "stream", label, "line", line)
	}
	pipe.Close()
}

// tailBuffer keeps the last n lines written by a process
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (b *tailBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.n {
		b.lines = b.lines[len(b.lines)-b.n:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// Last returns the most recent non-empty line
func (b *tailBuffer) Last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(b.lines[i]) != "" {
			return b.lines[i]
		}
	}
	return "no output"
}
