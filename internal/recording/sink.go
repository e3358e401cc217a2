// Package recording writes a host's outgoing screen stream to an MP4 file
// on disk by piping raw H.264 Annex-B bytes into an ffmpeg subprocess that
// stream-copies them into a container, with no re-encoding cost on the
// hot path.
package recording

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/streamdesk/server/internal/logging"
)

var log = logging.L("recording")

// Sink owns one ffmpeg subprocess writing to Filename.mp4 under dir. Every
// Screen packet byte slice a host sends while hosting is written to the
// subprocess's stdin verbatim; Close flushes and waits for the process to
// exit so the MP4 moov atom is finalized before the file is considered
// durable.
type Sink struct {
	// Filename is the UUID basename (without extension) this sink writes
	// to; callers persist it alongside the owning user's id and a
	// timestamp via internal/store.
	Filename string

	outputPath string

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// New allocates a fresh UUID filename and starts an ffmpeg subprocess
// stream-copying into dir/<uuid>.mp4.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: create output dir: %w", err)
	}

	filename := uuid.NewString()
	outputPath := filepath.Join(dir, filename+".mp4")

	cmd := exec.Command("ffmpeg",
		"-f", "h264",
		"-i", "-",
		"-c", "copy",
		outputPath,
	)
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recording: attach stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recording: start ffmpeg: %w", err)
	}

	log.Info("recording sink started", "filename", filename)
	return &Sink{Filename: filename, outputPath: outputPath, cmd: cmd, stdin: stdin}, nil
}

// OutputPath returns the local filesystem path of the finished MP4, for
// callers that archive it off-box after Close.
func (s *Sink) OutputPath() string {
	return s.outputPath
}

// Write appends one Screen packet's payload to the stream. Safe to call
// only from the single goroutine handling the hosting connection; ffmpeg
// consumes stdin as a strict byte stream, so interleaving writers would
// corrupt the NAL boundaries.
func (s *Sink) Write(nal []byte) error {
	if _, err := s.stdin.Write(nal); err != nil {
		return fmt.Errorf("recording: write to ffmpeg stdin: %w", err)
	}
	return nil
}

// Close closes ffmpeg's stdin and waits for it to finish muxing the MP4.
// A non-nil error here means the recording file may be missing or
// truncated; callers log it and still attempt to record the filename,
// matching the original's best-effort insert (§7 Storage failure).
func (s *Sink) Close() error {
	if err := s.stdin.Close(); err != nil {
		return fmt.Errorf("recording: close ffmpeg stdin: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("recording: ffmpeg exited with error: %w", err)
	}
	log.Info("recording sink finished", "filename", s.Filename)
	return nil
}
