package session

import (
	"log/slog"
	"time"

	"github.com/audiolibrelab/camcapture/internal/library"
)

const clockLayout = "2006-01-02 15:04:05"

// interval is a periodic task posting onto the loop until stopped
type interval struct {
	stop chan struct{}
}

// startInterval runs fn on the loop every d. fn receives its own interval so a
// tick queued before Stop can recognise it is stale.
func (c *Controller) startInterval(d time.Duration, fn func(iv *interval)) *interval {
	iv := &interval{stop: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.post(func() { fn(iv) })
			case <-iv.stop:
				return
			case <-c.quit:
				return
			}
		}
	}()
	return iv
}

func (c *Controller) stopTimer(slot **interval) {
	if *slot == nil {
		return
	}
	close((*slot).stop)
	*slot = nil
}

// activeTimers counts the running intervals
func (c *Controller) activeTimers() int {
	n := 0
	for _, iv := range []*interval{c.elapsedTimer, c.clockTimer, c.locationTimer} {
		if iv != nil {
			n++
		}
	}
	return n
}

// syncElapsedTimer keeps the elapsed sampler running only while recording on a focused screen
func (c *Controller) syncElapsedTimer() {
	want := c.focused && c.state == StateRecording
	switch {
	case want && c.elapsedTimer == nil:
		c.elapsedTimer = c.startInterval(c.opts.ElapsedInterval, func(iv *interval) {
			if c.elapsedTimer != iv {
				return
			}
			c.publish(Event{Type: EventTick, State: c.state})
		})
	case !want:
		c.stopTimer(&c.elapsedTimer)
	}
}

// Focus activates the camera and starts the screen timers: clock, location
// refresh and, while recording, the elapsed sampler.
func (c *Controller) Focus() error {
	return c.do(func() error {
		if c.focused {
			return nil
		}
		c.focused = true

		if c.camera != nil {
			if err := c.camera.SetActive(true); err != nil {
				slog.Warn("Could not activate camera", "error", err)
			}
		}

		c.clock = c.opts.Now().Format(clockLayout)
		c.clockTimer = c.startInterval(c.opts.ClockInterval, func(iv *interval) {
			if c.clockTimer != iv {
				return
			}
			c.clock = c.opts.Now().Format(clockLayout)
			c.publish(Event{Type: EventTick, State: c.state})
		})

		c.refreshLocation()
		if c.opts.LocationInterval > 0 && c.deps.Location != nil {
			c.locationTimer = c.startInterval(c.opts.LocationInterval, func(iv *interval) {
				if c.locationTimer != iv {
					return
				}
				c.refreshLocation()
			})
		}

		c.refreshThumbnail()
		c.syncElapsedTimer()
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

// Blur deactivates the camera and releases the screen timers. The session
// state is left unchanged.
func (c *Controller) Blur() error {
	return c.do(func() error {
		if !c.focused {
			return nil
		}
		c.focused = false
		c.stopScreenTimers()
		c.syncElapsedTimer()

		if c.camera != nil {
			if err := c.camera.SetActive(false); err != nil {
				slog.Warn("Could not deactivate camera", "error", err)
			}
		}
		c.publish(Event{Type: EventTick, State: c.state})
		return nil
	})
}

func (c *Controller) stopScreenTimers() {
	c.stopTimer(&c.clockTimer)
	c.stopTimer(&c.locationTimer)
}

// refreshLocation fetches a new snapshot; a nil result keeps the previous one
func (c *Controller) refreshLocation() {
	provider := c.deps.Location
	if provider == nil || c.locating {
		return
	}
	c.locating = true

	go func() {
		snapshot := provider.GetCurrentLocation(c.ctx)
		c.post(func() {
			c.locating = false
			if snapshot == nil || !c.focused {
				return
			}
			c.location = snapshot
			c.publish(Event{Type: EventTick, State: c.state})
		})
	}()
}

// refreshThumbnail points the last thumbnail at the newest library video
func (c *Controller) refreshThumbnail() {
	lib := c.deps.Library
	if lib == nil {
		return
	}

	go func() {
		assets, err := lib.ListRecent(c.ctx, library.AssetVideos, 1)
		if err != nil {
			slog.Debug("Could not load last video", "error", err)
			return
		}
		latest, ok := library.FirstOrNone(assets)
		if !ok {
			return
		}
		c.post(func() {
			c.lastThumbnail = latest.URI
			c.publish(Event{Type: EventTick, State: c.state})
		})
	}()
}
