// Package session implements the recording session controller: camera
// lifecycle, format selection, start/pause/resume/stop sequencing, elapsed
// time and hand-off to post-processing.
//
// Every mutation runs on a single event-loop goroutine. Device, pipeline,
// permission, location and library calls run in their own goroutines and post
// their completions back to the loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/device"
	"github.com/audiolibrelab/camcapture/internal/elapsed"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/location"
	"github.com/audiolibrelab/camcapture/internal/permission"
	"github.com/audiolibrelab/camcapture/internal/postprocess"
)

// Finalizer runs post-processing for a finished recording
type Finalizer interface {
	Run(ctx context.Context, req postprocess.Request) postprocess.Outcome
}

// Dependencies are the collaborators of a Controller. Location and Library may be nil.
type Dependencies struct {
	Driver      device.Driver
	Permissions permission.Checker
	Location    location.Provider
	Pipeline    Finalizer
	Library     library.Library
}

// Options configures a Controller
type Options struct {
	Settings    Settings
	Position    device.Position
	FrameRate   int
	Container   string
	Overlay     bool
	MaxDuration time.Duration
	WorkDir     string

	ElapsedInterval  time.Duration
	ClockInterval    time.Duration
	LocationInterval time.Duration

	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Position == "" {
		o.Position = device.PositionBack
	}
	if o.Settings.ResolutionTier == "" {
		o.Settings.ResolutionTier = format.TierAuto
	}
	if o.Settings.QualityTier == "" {
		o.Settings.QualityTier = compress.QualityMedium
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 30
	}
	if o.Container == "" {
		o.Container = "mp4"
	}
	if o.ElapsedInterval <= 0 {
		o.ElapsedInterval = 250 * time.Millisecond
	}
	if o.ClockInterval <= 0 {
		o.ClockInterval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Controller owns one recording session for one screen
type Controller struct {
	deps Dependencies
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSub     int

	// Loop-owned state below
	state     State
	pending   bool // pause or resume waiting for the device
	attempt   int
	stopFrom  State
	tracker   *elapsed.Tracker
	settings  Settings
	permitted bool
	focused   bool

	position device.Position
	camera   device.Camera
	formats  []format.Format
	selected *format.Format
	recorded *format.Format

	clock          string
	location       *location.Snapshot
	locating       bool
	lastThumbnail  string
	lastSizeMB     *float64
	lastResolution string

	elapsedTimer  *interval
	clockTimer    *interval
	locationTimer *interval
}

// New creates a controller in Idle, requests permissions and opens the camera.
// The screen is not focused until Focus is called.
func New(deps Dependencies, opts Options) *Controller {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		deps:        deps,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		tasks:       make(chan func()),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[int]chan Event),
		state:       StateIdle,
		tracker:     elapsed.NewTracker(opts.Now),
		settings:    opts.Settings,
		position:    opts.Position,
	}

	go c.loop()

	c.post(func() {
		c.requestPermissions()
		c.openCamera(c.position)
	})
	return c
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post queues fn on the loop; it is dropped once the controller is closed
func (c *Controller) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.quit:
	}
}

// do runs fn on the loop and waits for its result
func (c *Controller) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.tasks <- func() { reply <- fn() }:
	case <-c.quit:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Subscribe returns a channel of session events and a function to stop receiving them.
// Slow subscribers miss events rather than blocking the loop.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 64)
	c.subscribers[id] = ch

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	slog.Debug("Session state changed", "from", c.state, "to", s)
	c.state = s
	c.publish(Event{Type: EventState, State: s})
	c.syncElapsedTimer()
}

func (c *Controller) notify(kind NoticeKind, title, message string) {
	n := &Notice{Kind: kind, Title: title, Message: message, Time: c.opts.Now()}
	slog.Info("Session notice", "kind", kind, "title", title, "message", message)
	c.publish(Event{Type: EventNotice, State: c.state, Notice: n})
}

// enterIdle ends any recording: elapsed is reset and no transition is pending
func (c *Controller) enterIdle() {
	c.tracker.Reset()
	c.pending = false
	c.recorded = nil
	c.setState(StateIdle)
}

// Status returns a snapshot of the session
func (c *Controller) Status() (Status, error) {
	var st Status
	err := c.do(func() error {
		st = c.snapshot()
		return nil
	})
	return st, err
}

func (c *Controller) snapshot() Status {
	st := Status{
		State:          c.state,
		Position:       c.position,
		Ready:          c.ready(),
		Permitted:      c.permitted,
		Focused:        c.focused,
		Settings:       c.settings,
		ElapsedMs:      c.tracker.ElapsedMs(),
		Clock:          c.clock,
		Location:       c.location,
		LastThumbnail:  c.lastThumbnail,
		LastSizeMB:     c.lastSizeMB,
		LastResolution: c.lastResolution,
	}
	if c.selected != nil {
		f := *c.selected
		st.SelectedFormat = &f
	}
	st.Elapsed = elapsed.FormatTime(st.ElapsedMs)
	return st
}

// ready reports whether a start request can reach the device
func (c *Controller) ready() bool {
	return c.permitted && c.camera != nil && c.camera.Active() && c.selected != nil
}

func (c *Controller) requestPermissions() {
	checker := c.deps.Permissions
	if checker == nil {
		c.permitted = true
		return
	}

	go func() {
		granted := checker.RequestCameraAndMicrophone(c.ctx)
		galleryErr := checker.RequestGalleryAccess(c.ctx)
		c.post(func() {
			c.permitted = granted
			if !granted {
				c.notify(NoticePermission, "Permissions", "Camera and microphone permissions are required.")
			}
			if galleryErr != nil {
				c.notify(NoticePermission, "Permission", galleryErr.Error())
			}
			c.publish(Event{Type: EventTick, State: c.state})
		})
	}()
}

// openCamera opens the device at position; a late result for a position the
// user already switched away from is closed immediately
func (c *Controller) openCamera(position device.Position) {
	go func() {
		cam, err := c.deps.Driver.Open(c.ctx, position)
		c.post(func() {
			if position != c.position {
				if cam != nil {
					cam.Close()
				}
				return
			}
			if err != nil {
				slog.Warn("Camera unavailable", "position", position, "error", err)
				c.publish(Event{Type: EventTick, State: c.state})
				return
			}

			if c.camera != nil && c.camera != cam {
				c.camera.Close()
			}
			c.camera = cam
			c.formats = cam.Formats()
			c.reselect()
			if c.focused {
				if err := cam.SetActive(true); err != nil {
					slog.Warn("Could not activate camera", "error", err)
				}
			}
			slog.Info("Camera ready", "position", position, "formats", len(c.formats), "selected", c.selected)
			c.publish(Event{Type: EventTick, State: c.state})
		})
	}()
}

// reselect derives the selected format from the current device and tier.
// An empty format list leaves the device not ready.
func (c *Controller) reselect() {
	f, err := format.Select(c.formats, c.settings.ResolutionTier)
	if err != nil {
		c.selected = nil
		return
	}
	c.selected = &f
}

// Start begins a recording. It is a no-op while already recording or paused.
func (c *Controller) Start() error {
	return c.do(func() error {
		switch {
		case c.state == StateRecording || c.state == StatePaused:
			return nil
		case c.state.inFlight() || c.pending:
			return ErrBusy
		}

		if !c.permitted {
			c.notify(NoticePermission, "Permissions", "Camera and microphone permissions are required.")
			return ErrPermissionDenied
		}
		if !c.ready() {
			c.notify(NoticePleaseWait, "Please wait", "Camera is initializing...")
			return ErrDeviceNotReady
		}

		c.beginRecording()
		return nil
	})
}

func (c *Controller) beginRecording() {
	c.attempt++
	attempt := c.attempt
	c.tracker.Reset()
	f := *c.selected
	c.recorded = &f
	c.setState(StateInitializing)

	opts := c.recordOptions(f)
	cam := c.camera

	// At most one of finished/error is delivered per start request
	var once sync.Once
	onFinished := func(v device.Video) {
		once.Do(func() { c.post(func() { c.recordingFinished(attempt, v) }) })
	}
	onError := func(err error) {
		once.Do(func() { c.post(func() { c.recordingFailed(attempt, err) }) })
	}

	slog.Info("Starting recording", "output", opts.OutputPath, "format", f.String(), "quality", c.settings.QualityTier)
	go func() {
		err := cam.StartRecording(c.ctx, opts, onFinished, onError)
		c.post(func() { c.recordingStarted(attempt, err) })
	}()
}

func (c *Controller) recordOptions(f format.Format) device.RecordOptions {
	now := c.opts.Now()
	opts := device.RecordOptions{
		OutputPath:  filepath.Join(c.opts.WorkDir, rawFileName(now, c.attempt, c.opts.Container)),
		Format:      f,
		FrameRate:   c.opts.FrameRate,
		MaxDuration: c.opts.MaxDuration,
	}

	tagged := c.settings.LocationTaggingEnabled && c.location != nil
	if c.opts.Overlay {
		opts.Overlay = &device.Overlay{Timestamp: true}
		if tagged {
			opts.Overlay.Lines = c.location.Lines()
		}
	}
	if tagged {
		opts.Metadata = map[string]string{"location": c.location.ISO6709()}
		if c.location.Address != nil {
			opts.Metadata["comment"] = *c.location.Address
		}
	}
	return opts
}

// rawFileName is unique per start request so a kept raw file is never reused
func rawFileName(now time.Time, attempt int, container string) string {
	return fmt.Sprintf("VID_%s%03d_%d.%s", now.Format("20060102_150405"), now.Nanosecond()/int(time.Millisecond), attempt, container)
}

func (c *Controller) recordingStarted(attempt int, err error) {
	if attempt != c.attempt || c.state != StateInitializing {
		return
	}
	if err != nil {
		slog.Error("Recording start failed", "error", err)
		c.enterIdle()
		c.notify(NoticeStartFailed, "Error", err.Error())
		return
	}
	c.tracker.Start()
	c.setState(StateRecording)
}

// Pause freezes the recording and the elapsed time
func (c *Controller) Pause() error {
	return c.do(func() error {
		switch {
		case c.pending || c.state.inFlight():
			return ErrBusy
		case c.state == StatePaused:
			return nil
		case c.state != StateRecording:
			return ErrNotRecording
		}

		c.pending = true
		attempt, cam := c.attempt, c.camera
		go func() {
			err := cam.PauseRecording(c.ctx)
			c.post(func() { c.pauseDone(attempt, err) })
		}()
		return nil
	})
}

func (c *Controller) pauseDone(attempt int, err error) {
	if attempt != c.attempt || !c.pending {
		return
	}
	c.pending = false
	if c.state != StateRecording {
		return
	}
	if err != nil {
		c.notify(NoticePauseFailed, "Pause failed", err.Error())
		return
	}
	c.tracker.Pause()
	c.setState(StatePaused)
}

// Resume continues a paused recording from the frozen elapsed time
func (c *Controller) Resume() error {
	return c.do(func() error {
		switch {
		case c.pending || c.state.inFlight():
			return ErrBusy
		case c.state == StateRecording:
			return nil
		case c.state != StatePaused:
			return ErrNotRecording
		}

		c.pending = true
		attempt, cam := c.attempt, c.camera
		go func() {
			err := cam.ResumeRecording(c.ctx)
			c.post(func() { c.resumeDone(attempt, err) })
		}()
		return nil
	})
}

func (c *Controller) resumeDone(attempt int, err error) {
	if attempt != c.attempt || !c.pending {
		return
	}
	c.pending = false
	if c.state != StatePaused {
		return
	}
	if err != nil {
		c.notify(NoticeResumeFailed, "Resume failed", err.Error())
		return
	}
	c.tracker.Resume()
	c.setState(StateRecording)
}

// Stop asks the device to finish the recording; post-processing follows its completion
func (c *Controller) Stop() error {
	return c.do(func() error {
		switch {
		case c.state == StateStopping:
			return nil
		case c.pending || c.state.inFlight():
			return ErrBusy
		case c.state != StateRecording && c.state != StatePaused:
			return ErrNotRecording
		}

		c.stopFrom = c.state
		c.setState(StateStopping)

		attempt, cam := c.attempt, c.camera
		go func() {
			err := cam.StopRecording(c.ctx)
			c.post(func() { c.stopDone(attempt, err) })
		}()
		return nil
	})
}

// stopDone only matters on failure: success is signalled by the finished callback
func (c *Controller) stopDone(attempt int, err error) {
	if attempt != c.attempt || c.state != StateStopping || err == nil {
		return
	}
	slog.Error("Recording stop failed", "error", err)
	c.setState(c.stopFrom)
	c.notify(NoticeStopFailed, "Stop failed", err.Error())
}

// recordingFinished hands the raw file to the pipeline. A completion without a
// stop request (e.g. max duration reached) counts as an implicit stop.
func (c *Controller) recordingFinished(attempt int, v device.Video) {
	if attempt != c.attempt {
		return
	}
	switch c.state {
	case StateInitializing, StateRecording, StatePaused, StateStopping:
	default:
		return
	}
	if c.state != StateStopping {
		slog.Info("Recording ended by device", "state", c.state)
	}

	c.pending = false
	c.tracker.Pause()
	c.setState(StateFinalizing)

	req := postprocess.Request{
		RawPath: v.Path,
		Quality: c.settings.QualityTier,
		Width:   v.Width,
		Height:  v.Height,
	}
	if (req.Width == 0 || req.Height == 0) && c.recorded != nil {
		req.Width, req.Height = c.recorded.Width, c.recorded.Height
	}

	// Finalization is not cancelled by Close
	ctx := context.WithoutCancel(c.ctx)
	go func() {
		out := c.deps.Pipeline.Run(ctx, req)
		c.post(func() { c.finalized(attempt, out) })
	}()
}

func (c *Controller) finalized(attempt int, out postprocess.Outcome) {
	if attempt != c.attempt || c.state != StateFinalizing {
		return
	}
	c.enterIdle()

	if !out.Saved() {
		c.notify(NoticeSaveFailed, "Save failed", out.Message())
		return
	}

	c.lastSizeMB = out.SizeMB
	c.lastResolution = ""
	if out.Width > 0 && out.Height > 0 {
		c.lastResolution = fmt.Sprintf("%dx%d", out.Width, out.Height)
	}
	c.notify(NoticeSaved, "Saved", out.Message())
	c.refreshThumbnail()
}

// recordingFailed handles the device error callback
func (c *Controller) recordingFailed(attempt int, err error) {
	if attempt != c.attempt {
		return
	}
	switch c.state {
	case StateInitializing:
		slog.Error("Recording start failed", "error", err)
		c.enterIdle()
		c.notify(NoticeStartFailed, "Error", err.Error())
	case StateRecording, StatePaused, StateStopping:
		slog.Error("Recording error", "error", err)
		c.setState(StateFailed)
		c.enterIdle()
		c.notify(NoticeRecordingFailed, "Error", "Recording failed: "+err.Error())
	}
}

// SwitchCamera toggles between the back and front camera. Only allowed in Idle.
func (c *Controller) SwitchCamera() error {
	return c.do(func() error {
		if c.state != StateIdle || c.pending {
			return ErrNotIdle
		}

		if c.camera != nil {
			if err := c.camera.Close(); err != nil {
				slog.Warn("Could not close camera", "error", err)
			}
		}
		c.camera = nil
		c.formats = nil
		c.selected = nil
		c.position = c.position.Toggle()
		slog.Info("Switching camera", "position", c.position)
		c.openCamera(c.position)
		return nil
	})
}

// SetResolution changes the resolution tier and reselects the format. Only allowed in Idle.
func (c *Controller) SetResolution(tier format.ResolutionTier) error {
	return c.do(func() error {
		if c.state != StateIdle || c.pending {
			return ErrNotIdle
		}
		c.settings.ResolutionTier = tier
		c.reselect()
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// ToggleResolution cycles auto -> 720p -> 1080p -> 4k -> auto
func (c *Controller) ToggleResolution() error {
	return c.do(func() error {
		if c.state != StateIdle || c.pending {
			return ErrNotIdle
		}
		c.settings.ResolutionTier = c.settings.ResolutionTier.Next()
		c.reselect()
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// SetQuality changes the compression tier; it applies to the next finalization
func (c *Controller) SetQuality(q compress.Quality) error {
	return c.do(func() error {
		c.settings.QualityTier = q
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// ToggleQuality cycles low -> medium -> high -> low
func (c *Controller) ToggleQuality() error {
	return c.do(func() error {
		c.settings.QualityTier = c.settings.QualityTier.Next()
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// SetLocationTagging enables or disables the location overlay for the next recording
func (c *Controller) SetLocationTagging(enabled bool) error {
	return c.do(func() error {
		c.settings.LocationTaggingEnabled = enabled
		if enabled && c.focused {
			c.refreshLocation()
		}
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// Close releases every timer and the camera. A running finalization still
// completes but its outcome is no longer reported.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.do(func() error {
			c.stopScreenTimers()
			c.stopTimer(&c.elapsedTimer)
			c.focused = false
			if c.camera != nil {
				if cerr := c.camera.Close(); cerr != nil {
					return fmt.Errorf("failed to close camera: %w", cerr)
				}
				c.camera = nil
			}
			return nil
		})
		close(c.quit)
		<-c.done
		c.cancel()

		c.subMu.Lock()
		for id, ch := range c.subscribers {
			delete(c.subscribers, id)
			close(ch)
		}
		c.subMu.Unlock()
		slog.Debug("Session closed")
	})
	return err
}
