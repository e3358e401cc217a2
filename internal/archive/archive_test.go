package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamdesk/server/internal/config"
)

func TestNewWithNoneProviderIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.ArchiveProvider = "none"

	u, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "recording.mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := u.Upload(context.Background(), path, "recording.mp4"); err != nil {
		t.Fatalf("Upload on none provider should be a no-op, got: %v", err)
	}
}

func TestNewWithEmptyProviderIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.ArchiveProvider = ""

	u, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := u.(noneUploader); !ok {
		t.Fatalf("expected noneUploader, got %T", u)
	}
}

func TestNewWithUnknownProviderFails(t *testing.T) {
	cfg := config.Default()
	cfg.ArchiveProvider = "dropbox"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown archive provider")
	}
}

func TestOpenForReadMissingFileFails(t *testing.T) {
	if _, _, err := openForRead(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestOpenForReadReportsSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recording.mp4")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, size, err := openForRead(path)
	if err != nil {
		t.Fatalf("openForRead: %v", err)
	}
	defer f.Close()
	if size != 5 {
		t.Fatalf("size = %d, want 5", size)
	}
}
