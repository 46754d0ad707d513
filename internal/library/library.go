// Package library persists finished recordings into album directories, indexes
// them in SQLite and optionally mirrors them to S3.
package library

import (
	"context"
	"fmt"
	"time"
)

const FileScheme = "file://"

// AssetType filters ListRecent
type AssetType string

const (
	AssetVideos AssetType = "Videos"
	AssetAll    AssetType = "All"
)

// SaveOptions describe where a saved file goes. Type must be "video";
// Width and Height are optional index metadata.
type SaveOptions struct {
	Type   string
	Album  string
	Width  int
	Height int
}

// Asset is an indexed library entry
type Asset struct {
	ID              string    `json:"id"`
	URI             string    `json:"uri"`
	Filename        string    `json:"filename"`
	Album           string    `json:"album"`
	Kind            string    `json:"kind"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	RemoteURL       string    `json:"remote_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Path returns the local file path of the asset
func (a Asset) Path() string {
	if len(a.URI) > len(FileScheme) && a.URI[:len(FileScheme)] == FileScheme {
		return a.URI[len(FileScheme):]
	}
	return a.URI
}

// SaveError reports a failed library write
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("could not save %s to library: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Library is the media library used by the recording pipeline and the gallery
type Library interface {
	Save(ctx context.Context, path string, opts SaveOptions) (Asset, error)
	ListRecent(ctx context.Context, assetType AssetType, count int) ([]Asset, error)
}

// FirstOrNone returns the first element of seq, or false when seq is empty
func FirstOrNone[T any](seq []T) (T, bool) {
	var zero T
	if len(seq) == 0 {
		return zero, false
	}
	return seq[0], true
}
