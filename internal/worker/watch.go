package worker

import (
	"context"

	"github.com/streamdesk/server/internal/logging"
	"github.com/streamdesk/server/internal/playback"
	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/securechannel"
)

// WatchWorker streams a finished recording back to a client as a live
// Screen feed, supporting seek by restarting ffmpeg at a new offset.
// filename is the recording's UUID basename (without extension).
func WatchWorker(ctx context.Context, ch *securechannel.Channel, recordingsDir, filename string) error {
	log := logging.L("worker").With("filename", filename, "role", "watch")

	streamer, err := playback.NewStreamer(recordingsDir, filename, 0)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go pumpFrames(ch, streamer, done)

	for {
		packet, err := ch.Receive()
		if err != nil {
			streamer.Stop()
			<-done
			return err
		}

		switch p := packet.(type) {
		case protocol.SeekInitPacket:
			streamer.Stop()
			<-done
			if err := ch.Send(protocol.SeekInitPacket{}); err != nil {
				log.Warn("ack SeekInit failed", "error", err)
			}

		case protocol.SeekToPacket:
			streamer.Stop()
			<-done

			streamer, err = playback.NewStreamer(recordingsDir, filename, p.TimeSeconds)
			if err != nil {
				log.Warn("restart streamer at seek offset failed", "error", err)
				return err
			}
			done = make(chan struct{})
			go pumpFrames(ch, streamer, done)

		case protocol.SessionExitPacket, protocol.NonePacket:
			streamer.Stop()
			<-done
			if err := ch.Send(protocol.SessionExitPacket{}); err != nil {
				log.Warn("ack SessionExit failed", "error", err)
			}
			return nil

		default:
		}
	}
}

// pumpFrames relays decoded NAL units from streamer onto ch as Screen
// packets until the frame channel closes (EOF, error, or Stop). If the
// stream ran to natural end-of-file rather than being stopped by the
// caller, it sends a single None packet to signal end-of-stream, the
// only case in which nothing else in WatchWorker's loop would.
func pumpFrames(ch *securechannel.Channel, streamer *playback.Streamer, done chan struct{}) {
	defer close(done)
	for nal := range streamer.Frames() {
		if err := ch.Send(protocol.ScreenPacket{Bytes: nal}); err != nil {
			return
		}
	}
	if !streamer.Stopped() {
		if err := ch.Send(protocol.NonePacket{}); err != nil {
			logging.L("worker").With("role", "watch").Warn("send end-of-stream None failed", "error", err)
		}
	}
}
