// Package worker implements the per-role dispatch loops that run for the
// lifetime of one accepted connection once it has picked a scene: hosting
// a session, joining one as a participant, or watching back a recording.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streamdesk/server/internal/logging"
	"github.com/streamdesk/server/internal/metrics"
	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/securechannel"
	"github.com/streamdesk/server/internal/session"
)

// RecordingInserter persists a finished recording's metadata. Satisfied
// by store.Store; narrowed here so worker doesn't need the whole store
// surface.
type RecordingInserter interface {
	InsertRecording(ctx context.Context, filename, timeRFC3339 string, userID int32) error
}

// Archiver uploads a finished recording file off-box. Satisfied by
// archive.Uploader.
type Archiver interface {
	Upload(ctx context.Context, localPath, key string) error
}

// RecordingSink is the subset of recording.Sink the host loop drives:
// write every incoming Screen packet to it, then close it out once the
// host ends the session. Narrowed to an interface so tests can exercise
// dispatch logic without shelling out to ffmpeg.
type RecordingSink interface {
	Write(nal []byte) error
	Close() error
	OutputPath() string
}

// HostWorker runs the dispatch loop for a session's host connection. It
// owns the ffmpeg recording sink for the session's lifetime: every
// ScreenPacket is written to the encoder before being fanned out to
// participants, and the sink is closed and the finished file persisted
// once the host ends the session.
func HostWorker(ctx context.Context, ch *securechannel.Channel, sess *session.Session, registry *session.Registry, code uint32, username string, userID int32, sink RecordingSink, filename string, store RecordingInserter, archiver Archiver, createdAt string, m *metrics.Metrics) error {
	log := logging.L("worker").With("code", code, "username", username, "role", "host")

	if m != nil {
		m.SessionsActive.Inc()
		m.RecordingsActive.Inc()
	}
	defer func() {
		if m != nil {
			m.SessionsActive.Dec()
			m.RecordingsActive.Dec()
		}
	}()

	var loopErr error
loop:
	for {
		select {
		case <-ctx.Done():
			loopErr = ctx.Err()
			break loop
		default:
		}

		packet, err := ch.Receive()
		if err != nil {
			loopErr = err
			break loop
		}
		if m != nil {
			m.PacketsTotal.WithLabelValues(packet.Tag().String()).Inc()
		}

		switch p := packet.(type) {
		case protocol.JoinPacket:
			handleHostAdmit(sess, p.Username, log)

		case protocol.DenyJoinPacket:
			handleHostDeny(sess, p.Username, log)

		case protocol.ScreenPacket:
			if err := sink.Write(p.Bytes); err != nil {
				log.Warn("recording sink write failed", "error", err)
			}
			if err := sess.BroadcastParticipants(p); err != nil {
				log.Warn("broadcast to participants failed", "error", err)
			}

		case protocol.MergeUnreadyPacket:
			sess.MergeUnready()

		case protocol.RequestControlPacket:
			if target, ok := sess.Get(p.Username); ok {
				sess.SetRole(p.Username, protocol.RoleController)
				if err := target.Channel.Send(p); err != nil {
					log.Warn("forward RequestControl failed", "target", p.Username, "error", err)
				}
				_ = sess.BroadcastAll(protocol.UserUpdatePacket{Role: protocol.RoleController, Username: p.Username})
			}

		case protocol.DenyControlPacket:
			if target, ok := sess.Get(p.Username); ok {
				sess.SetRole(p.Username, protocol.RoleParticipant)
				if err := target.Channel.Send(p); err != nil {
					log.Warn("forward DenyControl failed", "target", p.Username, "error", err)
				}
				_ = sess.BroadcastAll(protocol.UserUpdatePacket{Role: protocol.RoleParticipant, Username: p.Username})
			}

		case protocol.ChatPacket:
			_ = sess.BroadcastAll(protocol.ChatPacket{Message: username + ": " + p.Message})

		case protocol.SessionExitPacket:
			_ = sess.BroadcastAll(protocol.SessionEndPacket{})
			registry.Destroy(code)
			break loop

		default:
		}
	}

	finishRecording(ctx, sink, filename, store, archiver, userID, createdAt, log)
	return loopErr
}

func handleHostAdmit(sess *session.Session, username string, log *slog.Logger) {
	before, joined, ok := sess.Admit(username)
	if !ok {
		return
	}
	if err := joined.SendResult(protocol.Success("Joining")); err != nil {
		log.Warn("notify admitted joiner failed", "username", username, "error", err)
		return
	}
	for member, role := range before {
		if err := joined.Send(protocol.UserUpdatePacket{Role: role, JoinedBefore: true, Username: member}); err != nil {
			log.Warn("replay membership to joiner failed", "username", username, "error", err)
		}
	}
	if err := sess.BroadcastAll(protocol.UserUpdatePacket{Role: protocol.RoleParticipant, Username: username}); err != nil {
		log.Warn("broadcast new member failed", "username", username, "error", err)
	}
}

func handleHostDeny(sess *session.Session, username string, log *slog.Logger) {
	pending, found := sess.PendingChannel(username)
	if found {
		if err := pending.SendResult(protocol.Failure("You were denied by the host.")); err != nil {
			log.Warn("notify denied joiner failed", "username", username, "error", err)
		}
	}
	sess.Deny(username)
}

func finishRecording(ctx context.Context, sink RecordingSink, filename string, store RecordingInserter, archiver Archiver, userID int32, createdAt string, log *slog.Logger) {
	if err := sink.Close(); err != nil {
		log.Warn("recording sink close failed", "error", err)
	}

	if err := store.InsertRecording(ctx, filename, createdAt, userID); err != nil {
		log.Error("insert recording row failed", "filename", filename, "error", err)
		return
	}

	if archiver == nil {
		return
	}
	key := fmt.Sprintf("%s.mp4", filename)
	if err := archiver.Upload(ctx, sink.OutputPath(), key); err != nil {
		log.Warn("archive upload failed, recording stays local-only", "filename", filename, "error", err)
	}
}
