package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRequestCameraAndMicrophone(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	if err := os.WriteFile(node, nil, 0600); err != nil {
		t.Fatal(err)
	}

	a := &Access{VideoDevice: node, Microphone: "default", SoundDir: dir}
	if !a.RequestCameraAndMicrophone(context.Background()) {
		t.Error("Expected permissions to be granted")
	}

	a.VideoDevice = filepath.Join(dir, "missing")
	if a.RequestCameraAndMicrophone(context.Background()) {
		t.Error("Expected denial for missing camera node")
	}

	a = &Access{VideoDevice: node, Microphone: "hw:1,0", SoundDir: filepath.Join(dir, "nosnd")}
	if a.RequestCameraAndMicrophone(context.Background()) {
		t.Error("Expected denial for missing sound directory")
	}

	a.Microphone = "disabled"
	if !a.RequestCameraAndMicrophone(context.Background()) {
		t.Error("Disabled microphone should not be checked")
	}
}

func TestRequestCameraAndMicrophone_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &Access{VideoDevice: os.DevNull}
	if a.RequestCameraAndMicrophone(ctx) {
		t.Error("Expected denial for cancelled context")
	}
}

func TestRequestGalleryAccess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Videos", "CamCapture")

	a := &Access{LibraryDir: dir}
	if err := a.RequestGalleryAccess(context.Background()); err != nil {
		t.Fatalf("Expected access, got %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected library directory to be created: %v", err)
	}

	a.LibraryDir = ""
	err := a.RequestGalleryAccess(context.Background())
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Expected DeniedError, got %v", err)
	}
	if denied.Reason == "" {
		t.Error("Expected a reason")
	}
}
