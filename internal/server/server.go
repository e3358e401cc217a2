// Package server wires every other package into the per-connection
// handler that drives one client from handshake through login, the
// recordings menu, and into whichever scene it picks (host, join, or
// watch), looping back to the menu each time that scene ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/streamdesk/server/internal/archive"
	"github.com/streamdesk/server/internal/authn"
	"github.com/streamdesk/server/internal/logging"
	"github.com/streamdesk/server/internal/metrics"
	"github.com/streamdesk/server/internal/playback"
	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/ratelimit"
	"github.com/streamdesk/server/internal/recording"
	"github.com/streamdesk/server/internal/securechannel"
	"github.com/streamdesk/server/internal/session"
	"github.com/streamdesk/server/internal/store"
	"github.com/streamdesk/server/internal/worker"
	"github.com/streamdesk/server/internal/workerpool"
)

var log = logging.L("server")

// Deps groups every collaborator a connection handler needs. All fields
// are required except Metrics and Archiver, which may be nil (metrics
// become no-ops; a nil archiver means recordings stay local-only).
type Deps struct {
	Store         store.Store
	Registry      *session.Registry
	Authenticator *authn.Authenticator
	LoginLimiter  *ratelimit.Limiter
	RecordingsDir string
	Archiver      archive.Uploader
	Metrics       *metrics.Metrics
}

// Server accepts TCP connections and runs the per-client protocol loop
// for each, dispatched through a workerpool.Pool so one client's panic
// cannot take down another's goroutine.
type Server struct {
	deps Deps
	pool *workerpool.Pool
}

// New returns a Server ready to Accept connections.
func New(deps Deps, pool *workerpool.Pool) *Server {
	return &Server{deps: deps, pool: pool}
}

// Accept runs the TCP accept loop against listener until it's closed or
// ctx is cancelled, spawning one pool task per accepted connection. It
// always returns a non-nil error once the loop stops.
func (s *Server) Accept(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		if !s.pool.Go(func() { s.handleConn(ctx, conn) }) {
			log.Warn("rejecting connection, server is shutting down", "remote", conn.RemoteAddr())
			conn.Close()
		}
	}
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()
	if m := s.deps.Metrics; m != nil {
		m.ConnectionsTotal.Inc()
	}

	ch, err := securechannel.NewServer(raw)
	if err != nil {
		log.Warn("secure channel handshake failed", "remote", raw.RemoteAddr(), "error", err)
		return
	}
	defer ch.Close()

	for {
		username, userID, ok := s.loginScene(ctx, ch)
		if !ok {
			return
		}
		if !s.menuScene(ctx, ch, username, userID) {
			s.deps.Authenticator.SignOut(username)
			return
		}
	}
}

// loginScene repeats until the client authenticates, signals Shutdown,
// or the channel breaks. ok is false whenever the connection should end.
func (s *Server) loginScene(ctx context.Context, ch *securechannel.Channel) (username string, userID int32, ok bool) {
	addr := ch.RemoteAddr().String()

	for {
		packet, err := ch.Receive()
		if err != nil {
			return "", 0, false
		}

		switch p := packet.(type) {
		case protocol.ShutdownPacket:
			return "", 0, false

		case protocol.LoginPacket:
			if !s.deps.LoginLimiter.Allow(addr) {
				_ = ch.SendResult(protocol.Failure("Too many attempts, please wait and try again."))
				continue
			}
			outcome := s.deps.Authenticator.Login(ctx, p.Username, p.PasswordHash)
			s.recordLoginOutcome(outcome.OK)
			if outcome.OK {
				if err := ch.SendResult(protocol.Success(outcome.Message)); err != nil {
					return "", 0, false
				}
				return outcome.Username, outcome.UserID, true
			}
			_ = ch.SendResult(protocol.Failure(outcome.Message))

		case protocol.RegisterPacket:
			if !s.deps.LoginLimiter.Allow(addr) {
				_ = ch.SendResult(protocol.Failure("Too many attempts, please wait and try again."))
				continue
			}
			outcome := s.deps.Authenticator.Register(ctx, p.Username, p.PasswordHash)
			s.recordLoginOutcome(outcome.OK)
			if outcome.OK {
				if err := ch.SendResult(protocol.Success(outcome.Message)); err != nil {
					return "", 0, false
				}
				return outcome.Username, outcome.UserID, true
			}
			_ = ch.SendResult(protocol.Failure(outcome.Message))

		default:
			// Ignore anything else while waiting to authenticate.
		}
	}
}

func (s *Server) recordLoginOutcome(ok bool) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	if ok {
		m.LoginAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		m.LoginAttemptsTotal.WithLabelValues("failure").Inc()
	}
}

// menuScene sends the recordings list and dispatches whichever scene the
// client picks next, looping back to resend the list once that scene
// ends. It returns false once the connection should close (a channel
// error), true if the caller should return to loginScene (on SignOut,
// since the client may log back in on the same connection).
func (s *Server) menuScene(ctx context.Context, ch *securechannel.Channel, username string, userID int32) bool {
	for {
		if err := s.sendRecordings(ctx, ch, userID); err != nil {
			return false
		}

		packet, err := ch.Receive()
		if err != nil {
			return false
		}

		switch p := packet.(type) {
		case protocol.SignOutPacket:
			s.deps.Authenticator.SignOut(username)
			return true

		case protocol.HostPacket:
			s.handleHost(ctx, ch, username, userID)

		case protocol.JoinPacket:
			s.handleJoin(ctx, ch, username, p)

		case protocol.WatchRecordingPacket:
			s.handleWatch(ctx, ch, p)

		default:
			// Ignore anything else at the menu.
		}
	}
}

func (s *Server) sendRecordings(ctx context.Context, ch *securechannel.Channel, userID int32) error {
	recordings, err := s.deps.Store.ListRecordings(ctx, userID)
	if err != nil {
		log.Warn("list recordings failed", "userID", userID, "error", err)
	}
	for id, rec := range recordings {
		if err := ch.Send(protocol.RecordingNamePacket{ID: id, Name: rec.Time}); err != nil {
			return err
		}
	}
	return ch.Send(protocol.NonePacket{})
}

func (s *Server) handleHost(ctx context.Context, ch *securechannel.Channel, username string, userID int32) {
	sink, err := recording.New(s.deps.RecordingsDir)
	if err != nil {
		log.Error("start recording sink failed", "username", username, "error", err)
		_ = ch.SendResult(protocol.Failure("Could not start hosting."))
		return
	}

	code, sess := s.deps.Registry.Create(username, session.Connection{Channel: ch})
	if err := ch.SendResult(protocol.Success(strconv.FormatUint(uint64(code), 10))); err != nil {
		_ = sink.Close()
		s.deps.Registry.Destroy(code)
		return
	}

	createdAt := time.Now().Format(time.RFC3339)
	if err := worker.HostWorker(ctx, ch, sess, s.deps.Registry, code, username, userID, sink, sink.Filename, s.deps.Store, s.deps.Archiver, createdAt, s.deps.Metrics); err != nil {
		log.Debug("host session ended", "code", code, "username", username, "error", err)
	}
}

func (s *Server) handleJoin(ctx context.Context, ch *securechannel.Channel, username string, p protocol.JoinPacket) {
	sess, found := s.deps.Registry.Lookup(p.Code)
	if !found {
		_ = ch.SendResult(protocol.Failure(fmt.Sprintf("No session found with code %d", p.Code)))
		return
	}

	if err := ch.SendResult(protocol.Success("Joining")); err != nil {
		return
	}
	if err := sess.Host().Send(protocol.JoinPacket{Code: p.Code, Username: username}); err != nil {
		log.Warn("forward join request to host failed", "code", p.Code, "username", username, "error", err)
		return
	}

	decision := sess.RequestJoin(username, session.Connection{Channel: ch})
	admitted, ok := <-decision
	if !ok || !admitted {
		return
	}

	if err := worker.ParticipantWorker(ctx, ch, sess, p.Code, username, s.deps.Metrics); err != nil {
		log.Debug("participant session ended", "code", p.Code, "username", username, "error", err)
	}
}

func (s *Server) handleWatch(ctx context.Context, ch *securechannel.Channel, p protocol.WatchRecordingPacket) {
	rec, found, err := s.deps.Store.GetRecording(ctx, p.ID)
	if err != nil {
		log.Warn("get recording failed", "id", p.ID, "error", err)
		_ = ch.SendResult(protocol.Failure("No recording found."))
		return
	}
	if !found {
		_ = ch.SendResult(protocol.Failure("No recording found."))
		return
	}

	frames, err := playback.ProbeDurationFrames(ctx, s.deps.RecordingsDir, rec.Filename)
	if err != nil {
		log.Warn("probe recording duration failed", "filename", rec.Filename, "error", err)
		_ = ch.SendResult(protocol.Failure("Could not read recording."))
		return
	}

	if err := ch.SendResult(protocol.Success(strconv.Itoa(int(frames)))); err != nil {
		return
	}

	if err := worker.WatchWorker(ctx, ch, s.deps.RecordingsDir, rec.Filename); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("watch session ended", "filename", rec.Filename, "error", err)
	}
}
