// Package postprocess turns a raw recording into a library asset:
// normalize, compress (or fall back to raw), size, persist, report.
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/library"
)

const fileScheme = "file://"

// CapturedAsset is the pipeline's view of one finished recording
type CapturedAsset struct {
	RawPath        string
	CompressedPath *string
	SizeBytes      *int64
}

// FinalPath is the compressed path when compression succeeded, else the raw path
func (c CapturedAsset) FinalPath() string {
	if c.CompressedPath != nil {
		return *c.CompressedPath
	}
	return c.RawPath
}

// Request describes one pipeline run
type Request struct {
	RawPath string
	Quality compress.Quality
	Width   int
	Height  int
}

// Outcome is reported back to the session once the pipeline finished
type Outcome struct {
	Captured CapturedAsset
	Asset    *library.Asset // nil when saving failed
	SizeMB   *float64
	Width    int
	Height   int
	Err      error // save failure, the only user-visible error
}

func (o Outcome) Saved() bool { return o.Err == nil && o.Asset != nil }

// Message renders the user-facing text for the outcome
func (o Outcome) Message() string {
	if !o.Saved() {
		if o.Err != nil {
			return o.Err.Error()
		}
		return "Could not save to library"
	}
	var b strings.Builder
	b.WriteString("Video saved to gallery.")
	if o.Width > 0 && o.Height > 0 {
		fmt.Fprintf(&b, "\nResolution: %dx%d", o.Width, o.Height)
	}
	if o.SizeMB != nil {
		fmt.Fprintf(&b, "\nSize: %s MB", FormatMB(*o.SizeMB))
	}
	return b.String()
}

// Options configures a Pipeline
type Options struct {
	Album   string
	Method  compress.Method
	KeepRaw bool
}

// Pipeline runs the post-processing steps strictly in order. It has no
// cancellation once started: a stop only ever leads into a full run.
type Pipeline struct {
	compressor compress.Compressor
	library    library.Library
	opts       Options

	stat func(name string) (os.FileInfo, error)
}

func New(compressor compress.Compressor, lib library.Library, opts Options) *Pipeline {
	if opts.Album == "" {
		opts.Album = "CameraApp"
	}
	if opts.Method == "" {
		opts.Method = compress.MethodAuto
	}
	return &Pipeline{
		compressor: compressor,
		library:    lib,
		opts:       opts,
		stat:       os.Stat,
	}
}

// Run processes one recording. Compression and size failures degrade; only
// the library write can fail the outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) Outcome {
	rawURI := NormalizeURI(req.RawPath)
	captured := CapturedAsset{RawPath: rawURI}
	out := Outcome{Width: req.Width, Height: req.Height}

	compressOpts := compress.Options{Method: p.opts.Method, Quality: req.Quality}
	compressed, err := p.compressor.Compress(ctx, rawURI, compressOpts)
	if err != nil {
		slog.Warn("Video compression failed, saving original", "file", rawURI, "error", err)
	} else {
		compressedURI := NormalizeURI(compressed)
		captured.CompressedPath = &compressedURI
		out.Width, out.Height = compressOpts.OutputSize(req.Width, req.Height)
	}
	finalURI := captured.FinalPath()

	if info, err := p.stat(stripScheme(finalURI)); err != nil {
		slog.Debug("Could not compute file size", "file", finalURI, "error", err)
	} else {
		size := info.Size()
		captured.SizeBytes = &size
		mb := SizeMB(size)
		out.SizeMB = &mb
	}
	out.Captured = captured

	asset, err := p.library.Save(ctx, finalURI, library.SaveOptions{
		Type:   "video",
		Album:  p.opts.Album,
		Width:  out.Width,
		Height: out.Height,
	})
	if err != nil {
		slog.Error("Save failed", "file", finalURI, "error", err)
		out.Err = fmt.Errorf("save failed: %w", err)
		// The raw recording is the only copy left
		if captured.CompressedPath != nil {
			os.Remove(stripScheme(*captured.CompressedPath))
		}
		slog.Warn("Raw recording kept after failed save", "file", stripScheme(rawURI))
		return out
	}
	out.Asset = &asset

	p.cleanup(captured)
	slog.Info("Recording processed", "asset", asset.ID, "compressed", captured.CompressedPath != nil, "size_mb", out.SizeMB)
	return out
}

// cleanup removes the working copies once the library holds its own copy
func (p *Pipeline) cleanup(c CapturedAsset) {
	if c.CompressedPath != nil {
		os.Remove(stripScheme(*c.CompressedPath))
	}
	if !p.opts.KeepRaw {
		os.Remove(stripScheme(c.RawPath))
	}
}

// NormalizeURI returns path as a file:// URI
func NormalizeURI(path string) string {
	if strings.HasPrefix(path, fileScheme) {
		return path
	}
	return fileScheme + path
}

func stripScheme(uri string) string {
	return strings.TrimPrefix(uri, fileScheme)
}

// SizeMB converts bytes to megabytes rounded to 2 decimals
func SizeMB(bytes int64) float64 {
	mb := float64(bytes) / (1024 * 1024)
	return math.Round(mb*100) / 100
}

// FormatMB renders a size without trailing zeros, e.g. 12.5 or 3
func FormatMB(mb float64) string {
	s := fmt.Sprintf("%.2f", mb)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
