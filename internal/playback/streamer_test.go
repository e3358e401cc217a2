package playback

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
)

func TestDrainStartCodesSingleChunk(t *testing.T) {
	data := []byte{0, 0, 1, 0x67, 0x01, 0, 0, 1, 0x65, 0x02, 0x03}

	var current []byte
	started := false
	var emitted [][]byte
	emit := func() bool {
		emitted = append(emitted, append([]byte(nil), current...))
		current = current[:0]
		return true
	}

	consumed, ok := drainStartCodes(data, &current, &started, emit)
	if !ok {
		t.Fatal("drainStartCodes reported failure")
	}
	// The trailing NAL (0x65 0x02 0x03) is never flushed until EOF; only
	// the first complete unit triggers emit here.
	if len(emitted) != 1 {
		t.Fatalf("emitted %d NALs mid-stream, want 1", len(emitted))
	}
	if !bytes.Equal(emitted[0], []byte{0x67, 0x01}) {
		t.Fatalf("first NAL = %v, want [0x67 0x01]", emitted[0])
	}
	if !started {
		t.Fatal("started should be true after seeing a start code")
	}

	// Simulate end of stream: flush what's left.
	current = append(current, data[consumed:]...)
	emit()
	if len(emitted) != 2 {
		t.Fatalf("emitted %d NALs after flush, want 2", len(emitted))
	}
	if !bytes.Equal(emitted[1], []byte{0x65, 0x02, 0x03}) {
		t.Fatalf("second NAL = %v, want [0x65 0x02 0x03]", emitted[1])
	}
}

func TestDrainStartCodesSplitAcrossChunks(t *testing.T) {
	full := []byte{0, 0, 1, 0x67, 0, 0, 1, 0x65, 0xAA}
	// Split so the second start code's leading zero bytes land at the
	// very end of chunk one.
	chunk1 := full[:5] // {0,0,1,0x67,0}
	chunk2 := full[5:] // {0,1,0x65,0xAA}

	var current []byte
	started := false
	var emitted [][]byte
	emit := func() bool {
		emitted = append(emitted, append([]byte(nil), current...))
		current = current[:0]
		return true
	}

	var pending []byte
	pending = append(pending, chunk1...)
	consumed, ok := drainStartCodes(pending, &current, &started, emit)
	if !ok {
		t.Fatal("drainStartCodes reported failure")
	}
	pending = append(pending[:0], pending[consumed:]...)

	pending = append(pending, chunk2...)
	consumed, ok = drainStartCodes(pending, &current, &started, emit)
	if !ok {
		t.Fatal("drainStartCodes reported failure")
	}
	pending = append(pending[:0], pending[consumed:]...)

	current = append(current, pending...)
	emit()

	if len(emitted) != 2 {
		t.Fatalf("emitted %d NALs, want 2 (got %v)", len(emitted), emitted)
	}
	if !bytes.Equal(emitted[0], []byte{0x67}) {
		t.Fatalf("first NAL = %v, want [0x67]", emitted[0])
	}
	if !bytes.Equal(emitted[1], []byte{0x65, 0xAA}) {
		t.Fatalf("second NAL = %v, want [0x65 0xAA]", emitted[1])
	}
}

func TestDrainStartCodesIgnoresLeadingGarbage(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0, 0, 1, 0x67}

	var current []byte
	started := false
	emit := func() bool { return true }

	consumed, ok := drainStartCodes(data, &current, &started, emit)
	if !ok {
		t.Fatal("drainStartCodes reported failure")
	}
	if !started {
		t.Fatal("started should become true once a start code appears")
	}
	// drainStartCodes holds back up to two trailing bytes for the next
	// read, so the 0x67 after the start code stays unconsumed here.
	if !bytes.Equal(current, []byte{}) {
		t.Fatalf("current = %v, want empty", current)
	}
	if consumed != len(data)-1 {
		t.Fatalf("consumed = %d, want %d", consumed, len(data)-1)
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available on PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available on PATH")
	}
}

func TestProbeDurationFramesOnMissingFileFails(t *testing.T) {
	requireFFmpeg(t)

	_, err := ProbeDurationFrames(context.Background(), t.TempDir(), "does-not-exist")
	if err == nil {
		t.Fatal("expected an error probing a nonexistent recording")
	}
}
