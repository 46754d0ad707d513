package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Local stores assets under <dir>/<album>/ and indexes them in a Store
type Local struct {
	dir    string
	store  *Store
	mirror Mirror
	keyFn  func(album, filename string) string

	probe func(ctx context.Context, path string) (float64, error)
	now   func() time.Time
}

// Option customizes a Local library
type Option func(*Local)

// WithMirror uploads every saved asset to m under <album>/<filename>
func WithMirror(m Mirror) Option {
	return func(l *Local) { l.mirror = m }
}

// WithS3Mirror uploads every saved asset to S3 after it is indexed
func WithS3Mirror(m *S3Mirror) Option {
	return func(l *Local) {
		l.mirror = m
		l.keyFn = m.Key
	}
}

// NewLocal creates a library rooted at dir using store as its index
func NewLocal(dir string, store *Store, opts ...Option) *Local {
	l := &Local{
		dir:   dir,
		store: store,
		keyFn: func(album, filename string) string { return album + "/" + filename },
		probe: probeDuration,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Save copies path (a file path or file:// URI) into the album and indexes it
func (l *Local) Save(ctx context.Context, path string, opts SaveOptions) (Asset, error) {
	src := strings.TrimPrefix(path, FileScheme)

	if opts.Type != "video" {
		return Asset{}, &SaveError{Path: path, Err: fmt.Errorf("unsupported asset type %q", opts.Type)}
	}
	if opts.Album == "" || strings.ContainsAny(opts.Album, `/\`) {
		return Asset{}, &SaveError{Path: path, Err: fmt.Errorf("invalid album name %q", opts.Album)}
	}

	info, err := os.Stat(src)
	if err != nil {
		return Asset{}, &SaveError{Path: path, Err: err}
	}

	albumDir := filepath.Join(l.dir, opts.Album)
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		return Asset{}, &SaveError{Path: path, Err: fmt.Errorf("create album directory: %w", err)}
	}

	dst, err := uniquePath(albumDir, filepath.Base(src))
	if err != nil {
		return Asset{}, &SaveError{Path: path, Err: err}
	}
	if err := copyFile(src, dst); err != nil {
		return Asset{}, &SaveError{Path: path, Err: err}
	}

	asset := Asset{
		ID:        uuid.New().String(),
		URI:       FileScheme + dst,
		Filename:  filepath.Base(dst),
		Album:     opts.Album,
		Kind:      opts.Type,
		SizeBytes: info.Size(),
		Width:     opts.Width,
		Height:    opts.Height,
		CreatedAt: l.now(),
	}

	if duration, err := l.probe(ctx, dst); err != nil {
		slog.Debug("Could not probe duration", "file", dst, "error", err)
	} else {
		asset.DurationSeconds = duration
	}

	if err := l.store.Insert(ctx, asset); err != nil {
		os.Remove(dst)
		return Asset{}, &SaveError{Path: path, Err: err}
	}

	slog.Info("Video saved to library", "id", asset.ID, "file", dst, "album", opts.Album)

	if l.mirror != nil {
		l.upload(ctx, &asset, dst)
	}

	return asset, nil
}

// upload mirrors the asset; failures are logged since the local save already succeeded
func (l *Local) upload(ctx context.Context, asset *Asset, localPath string) {
	url, err := l.mirror.Upload(ctx, localPath, l.keyFn(asset.Album, asset.Filename))
	if err != nil {
		slog.Warn("S3 mirror upload failed", "id", asset.ID, "error", err)
		return
	}
	if err := l.store.SetRemoteURL(ctx, asset.ID, url); err != nil {
		slog.Warn("Could not record mirror URL", "id", asset.ID, "error", err)
		return
	}
	asset.RemoteURL = url
	slog.Debug("Asset mirrored", "id", asset.ID, "url", url)
}

// ListRecent returns up to count assets, newest first
func (l *Local) ListRecent(ctx context.Context, assetType AssetType, count int) ([]Asset, error) {
	if count <= 0 {
		return nil, nil
	}
	kind := ""
	switch assetType {
	case AssetVideos:
		kind = "video"
	case AssetAll, "":
	default:
		return nil, fmt.Errorf("unsupported asset type %q", assetType)
	}
	return l.store.Recent(ctx, kind, count)
}

// Get returns a single asset by ID
func (l *Local) Get(ctx context.Context, id string) (Asset, error) {
	return l.store.Get(ctx, id)
}

// uniquePath returns dir/name, adding a numeric suffix when the name is taken
func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 1; i < 1000; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// probeDuration reads the container duration in seconds with ffprobe
func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}
	return seconds, nil
}
