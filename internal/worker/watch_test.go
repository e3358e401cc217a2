package worker

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/streamdesk/server/internal/protocol"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available on PATH")
	}
}

// generateTestRecording renders a one-second synthetic clip so WatchWorker
// has a real file to re-encode from.
func generateTestRecording(t *testing.T, dir, filename string) {
	t.Helper()
	path := filepath.Join(dir, filename+".mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x64:rate=10",
		"-pix_fmt", "yuv420p",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not render synthetic test recording: %v\n%s", err, out)
	}
}

func TestWatchWorkerStreamsFramesThenExits(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	generateTestRecording(t, dir, "clip")

	server, client := pairedChannels(t)

	errc := make(chan error, 1)
	go func() {
		errc <- WatchWorker(context.Background(), server, dir, "clip")
	}()

	// Drain whatever Screen frames show up before the exit request; we
	// only care that at least the dispatch loop is alive and responsive.
	go func() {
		for {
			if _, err := client.Receive(); err != nil {
				return
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)

	if err := client.Send(protocol.SessionExitPacket{}); err != nil {
		t.Fatalf("Send SessionExit: %v", err)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("WatchWorker returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("WatchWorker did not return after SessionExit")
	}
}

func TestWatchWorkerSendsNoneOnNaturalEndOfStream(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	generateTestRecording(t, dir, "clip3")

	server, client := pairedChannels(t)

	errc := make(chan error, 1)
	go func() {
		errc <- WatchWorker(context.Background(), server, dir, "clip3")
	}()

	sawNone := make(chan struct{})
	go func() {
		for {
			p, err := client.Receive()
			if err != nil {
				return
			}
			if _, ok := p.(protocol.NonePacket); ok {
				close(sawNone)
				return
			}
		}
	}()

	select {
	case <-sawNone:
	case err := <-errc:
		t.Fatalf("WatchWorker returned before sending end-of-stream None: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("did not observe a None packet after the clip ran to completion")
	}

	if err := client.Send(protocol.SessionExitPacket{}); err != nil {
		t.Fatalf("Send SessionExit: %v", err)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("WatchWorker returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("WatchWorker did not return after SessionExit")
	}
}

func TestWatchWorkerStopsOnChannelClose(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	generateTestRecording(t, dir, "clip2")

	server, client := pairedChannels(t)

	errc := make(chan error, 1)
	go func() {
		errc <- WatchWorker(context.Background(), server, dir, "clip2")
	}()

	go func() {
		for {
			if _, err := client.Receive(); err != nil {
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	client.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected WatchWorker to return an error once the channel closes")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("WatchWorker did not return after the channel closed")
	}
}
