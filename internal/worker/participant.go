package worker

import (
	"context"

	"github.com/streamdesk/server/internal/logging"
	"github.com/streamdesk/server/internal/metrics"
	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/securechannel"
	"github.com/streamdesk/server/internal/session"
)

// ParticipantWorker runs the dispatch loop for a joined (non-host)
// connection: it forwards control input to the host when the caller
// currently holds RoleController, relays chat, and tears the member out
// of the session on exit or on the host ending it.
func ParticipantWorker(ctx context.Context, ch *securechannel.Channel, sess *session.Session, code uint32, username string, m *metrics.Metrics) error {
	log := logging.L("worker").With("code", code, "username", username, "role", "participant")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		packet, err := ch.Receive()
		if err != nil {
			sess.Remove(username)
			_ = sess.BroadcastAll(protocol.UserUpdatePacket{Role: protocol.RoleLeaving, Username: username})
			return err
		}
		if m != nil {
			m.PacketsTotal.WithLabelValues(packet.Tag().String()).Inc()
		}

		switch p := packet.(type) {
		case protocol.ControlPacket:
			if self, ok := sess.Get(username); ok && self.Role == protocol.RoleController {
				if err := sess.Host().Send(p); err != nil {
					log.Warn("forward control to host failed", "error", err)
				}
			}

		case protocol.RequestControlPacket:
			self, ok := sess.Get(username)
			if ok && self.Role == protocol.RoleParticipant {
				if err := sess.Host().Send(p); err != nil {
					log.Warn("forward RequestControl to host failed", "error", err)
				}
			} else {
				if err := ch.Send(protocol.DenyControlPacket{Username: username}); err != nil {
					log.Warn("send local DenyControl failed", "error", err)
				}
			}

		case protocol.ChatPacket:
			_ = sess.BroadcastAll(protocol.ChatPacket{Message: username + ": " + p.Message})

		case protocol.SessionExitPacket, protocol.NonePacket:
			sess.Remove(username)
			_ = sess.BroadcastAll(protocol.UserUpdatePacket{Role: protocol.RoleLeaving, Username: username})
			if err := ch.Send(protocol.SessionExitPacket{}); err != nil {
				log.Warn("ack SessionExit failed", "error", err)
			}
			return nil

		case protocol.SessionEndPacket:
			return nil

		default:
		}
	}
}
