// Package playback re-encodes a recorded MP4 back into a raw H.264
// Annex-B elementary stream for live seeking, framing each NAL unit the
// same way the live host stream does so downstream code (wire encoding,
// the player) needs no special case for recorded playback.
package playback

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/streamdesk/server/internal/logging"
)

var log = logging.L("playback")

// startCode is the Annex-B NAL delimiter every unit is re-prefixed with
// before being handed to the caller, matching what a live host stream
// sends over the wire.
var startCode = []byte{0x00, 0x00, 0x01}

// frameQueueDepth bounds how many decoded NAL units may be buffered ahead
// of the consumer; once full, the ffmpeg-reading goroutine blocks, which
// is the intended backpressure rather than unbounded memory growth.
const frameQueueDepth = 30

// ProbeDurationFrames runs ffprobe against dir/filename.mp4 and returns
// its duration expressed as a 30fps frame count, matching the count the
// client's seek bar is scaled to.
func ProbeDurationFrames(ctx context.Context, dir, filename string) (int32, error) {
	path := filepath.Join(dir, filename+".mp4")

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("playback: ffprobe: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("playback: parse ffprobe duration: %w", err)
	}

	frames := int32(seconds*30.0 + 0.999999)
	return frames, nil
}

// Streamer drives one ffmpeg subprocess that re-encodes a recording,
// starting from a given offset, into a channel of Annex-B-framed NAL
// units ready to send as Screen packets.
type Streamer struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	frames chan []byte
	done   chan struct{}
	stopCh chan struct{}
	stop   atomic.Bool

	readErr error
}

// NewStreamer starts ffmpeg re-encoding dir/filename.mp4 to libx264,
// seeking to startSeconds, and begins pushing framed NAL units onto the
// returned Streamer's channel in a background goroutine.
func NewStreamer(dir, filename string, startSeconds int32) (*Streamer, error) {
	path := filepath.Join(dir, filename+".mp4")

	cmd := exec.Command("ffmpeg",
		"-ss", strconv.Itoa(int(startSeconds)),
		"-i", path,
		"-vcodec", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-force_key_frames", "expr:gte(t,0)",
		"-f", "h264",
		"-",
	)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: attach stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start ffmpeg: %w", err)
	}

	s := &Streamer{
		cmd:    cmd,
		stdout: stdout,
		frames: make(chan []byte, frameQueueDepth),
		done:   make(chan struct{}),
		stopCh: make(chan struct{}),
	}

	log.Info("playback streamer started", "filename", filename, "startSeconds", startSeconds)
	go s.readLoop()
	return s, nil
}

// Frames returns the channel of Annex-B-framed NAL units. It is closed
// once ffmpeg's output is exhausted or Stop is called.
func (s *Streamer) Frames() <-chan []byte {
	return s.frames
}

// Stopped reports whether Stop has been called. A caller draining Frames
// to closure can use this to tell a caller-initiated stop apart from the
// stream reaching natural end-of-file.
func (s *Streamer) Stopped() bool {
	return s.stop.Load()
}

// readLoop scans ffmpeg's raw Annex-B stdout for start codes, splitting
// it into NAL units and pushing each (re-prefixed with a 3-byte start
// code) onto frames. It exits on EOF, a read error, or Stop.
//
// A 3-byte start code can straddle two Read calls, so unprocessed bytes
// carry over in pending between iterations rather than being scanned in
// isolation per chunk.
func (s *Streamer) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	reader := bufio.NewReaderSize(s.stdout, 64*1024)
	var pending []byte
	var current []byte
	started := false
	buf := make([]byte, 4096)

	emit := func() bool {
		if !started || len(current) == 0 {
			return true
		}
		nal := make([]byte, 0, len(startCode)+len(current))
		nal = append(nal, startCode...)
		nal = append(nal, current...)
		current = current[:0]

		select {
		case s.frames <- nal:
			return true
		case <-s.stopCh:
			return false
		}
	}

	for {
		if s.stop.Load() {
			return
		}

		n, err := reader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			consumed, ok := drainStartCodes(pending, &current, &started, emit)
			if !ok {
				return
			}
			pending = append(pending[:0], pending[consumed:]...)
		}
		if err != nil {
			if err != io.EOF {
				s.readErr = fmt.Errorf("playback: read ffmpeg stdout: %w", err)
			}
			current = append(current, pending...)
			emit()
			return
		}
	}
}

// drainStartCodes scans data for 0x000001 start codes, appending the
// bytes of each completed NAL unit to current and calling emit once per
// boundary crossed. It returns how many leading bytes of data were fully
// resolved (safe to discard); the last up to two bytes are always left
// unconsumed so a start code split across the next Read is still found.
func drainStartCodes(data []byte, current *[]byte, started *bool, emit func() bool) (consumed int, ok bool) {
	segStart := 0
	i := 0
	for i+3 <= len(data) {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if *started {
				*current = append(*current, data[segStart:i]...)
				if !emit() {
					return i, false
				}
			}
			*started = true
			i += 3
			segStart = i
			continue
		}
		i++
	}

	safeEnd := len(data) - 2
	if safeEnd < segStart {
		safeEnd = segStart
	}
	if *started {
		*current = append(*current, data[segStart:safeEnd]...)
	}
	return safeEnd, true
}

// Stop signals the read loop to exit, kills the ffmpeg subprocess, and
// waits for both to finish. Safe to call once; a second call is a no-op.
func (s *Streamer) Stop() error {
	if s.stop.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	_ = s.cmd.Process.Kill()
	<-s.done

	err := s.cmd.Wait()
	if s.readErr != nil {
		return s.readErr
	}
	if err != nil {
		// Killing the process is expected to surface as a non-zero exit
		// or signal error; that is not itself a failure worth reporting.
		return nil
	}
	return nil
}
