package format

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoFormats is returned by Select when the device reported no formats
var ErrNoFormats = errors.New("no capture formats available")

// Format is a capture configuration supported by a device
type Format struct {
	ID          string  `json:"id" yaml:"id"`
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
	PixelFormat string  `json:"pixel_format,omitempty" yaml:"pixel_format,omitempty"`
	FrameRate   float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
}

// Pixels returns width*height
func (f Format) Pixels() int {
	return f.Width * f.Height
}

// Size returns the WxH form used by ffmpeg's -video_size
func (f Format) Size() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

func (f Format) String() string {
	if f.ID != "" {
		return fmt.Sprintf("%s (%s)", f.Size(), f.ID)
	}
	return f.Size()
}

// ResolutionTier is the coarse resolution requested by the user
type ResolutionTier string

const (
	TierAuto  ResolutionTier = "auto"
	Tier720p  ResolutionTier = "720p"
	Tier1080p ResolutionTier = "1080p"
	Tier4K    ResolutionTier = "4k"
)

// Tiers lists the resolution tiers in toggle order
var Tiers = []ResolutionTier{TierAuto, Tier720p, Tier1080p, Tier4K}

// ParseResolutionTier accepts the config/CLI spelling of a tier
func ParseResolutionTier(s string) (ResolutionTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TierAuto, nil
	case "720p", "720", "hd":
		return Tier720p, nil
	case "1080p", "1080", "fhd":
		return Tier1080p, nil
	case "4k", "2160p", "2160", "uhd":
		return Tier4K, nil
	}
	return "", fmt.Errorf("unknown resolution tier %q (valid: auto, 720p, 1080p, 4k)", s)
}

// Next returns the tier following t in the toggle cycle auto -> 720p -> 1080p -> 4k -> auto
func (t ResolutionTier) Next() ResolutionTier {
	for i, tier := range Tiers {
		if tier == t {
			return Tiers[(i+1)%len(Tiers)]
		}
	}
	return TierAuto
}

// TargetHeight returns the frame height a tier asks for, 0 for auto
func (t ResolutionTier) TargetHeight() int {
	switch t {
	case Tier720p:
		return 720
	case Tier1080p:
		return 1080
	case Tier4K:
		return 2160
	default:
		return 0
	}
}

// Select picks the format for a tier. The result depends only on the arguments,
// so callers re-run it whenever the device or the tier changes.
//
// auto returns the largest frame (first one wins on ties). Fixed tiers prefer an
// exact height, then the closest height below the target, then the closest above,
// and finally the first format.
func Select(formats []Format, tier ResolutionTier) (Format, error) {
	if len(formats) == 0 {
		return Format{}, ErrNoFormats
	}

	target := tier.TargetHeight()
	if target == 0 {
		best := formats[0]
		for _, f := range formats[1:] {
			if f.Pixels() > best.Pixels() {
				best = f
			}
		}
		return best, nil
	}

	for _, f := range formats {
		if f.Height == target {
			return f, nil
		}
	}

	below, above := -1, -1
	for i, f := range formats {
		if f.Height <= target {
			if below == -1 || f.Height > formats[below].Height {
				below = i
			}
			continue
		}
		if above == -1 || f.Height < formats[above].Height {
			above = i
		}
	}

	switch {
	case below != -1:
		return formats[below], nil
	case above != -1:
		return formats[above], nil
	default:
		return formats[0], nil
	}
}
