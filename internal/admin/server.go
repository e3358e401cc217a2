package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/session"
)

// Sessions is the subset of session.Registry the control socket needs.
// Narrowed to an interface so tests can exercise dispatch without a real
// registry.
type Sessions interface {
	Snapshot() []session.Summary
	Lookup(code uint32) (*session.Session, bool)
}

// Server accepts control socket connections, authenticates each with a
// shared token, then serves list/info/evict requests against registry
// until the connection closes.
type Server struct {
	listener  net.Listener
	token     string
	registry  Sessions
}

// NewServer wraps an already-bound listener (a Unix socket or Windows
// named pipe opened with appropriately restrictive permissions by the
// caller) to serve the control protocol.
func NewServer(listener net.Listener, token string, registry Sessions) *Server {
	return &Server{listener: listener, token: token, registry: registry}
}

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine. It always returns a non-nil error, mirroring
// net.Listener.Accept's convention.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return fmt.Errorf("admin: accept: %w", err)
		}
		go s.handle(conn)
	}
}

// Close closes the underlying listener, causing Serve to return.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(raw net.Conn) {
	defer raw.Close()
	conn := NewConn(raw)
	log := log.With("remote", raw.RemoteAddr())

	if err := s.authenticate(conn); err != nil {
		log.Warn("control socket auth failed", "error", err)
		return
	}

	for {
		env, err := conn.Recv()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug("control socket connection ended", "error", err)
			}
			return
		}
		if err := s.dispatch(conn, env); err != nil {
			log.Warn("control socket dispatch failed", "type", env.Type, "error", err)
			return
		}
	}
}

func (s *Server) authenticate(conn *Conn) error {
	env, err := conn.Recv()
	if err != nil {
		return fmt.Errorf("read auth request: %w", err)
	}
	if env.Type != TypeAuth {
		return fmt.Errorf("expected %q, got %q", TypeAuth, env.Type)
	}
	var req AuthRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return fmt.Errorf("decode auth request: %w", err)
	}
	if !checkToken(s.token, req.Token) {
		return errors.New("token mismatch")
	}
	return conn.SendTyped(TypeAuth, AuthResponse{})
}

func (s *Server) dispatch(conn *Conn, env *Envelope) error {
	switch env.Type {
	case TypeListSessions:
		return s.handleListSessions(conn)
	case TypeSessionInfo:
		return s.handleSessionInfo(conn, env)
	case TypeEvictUser:
		return s.handleEvictUser(conn, env)
	default:
		return conn.SendError(env.Type, fmt.Sprintf("unknown request type %q", env.Type))
	}
}

func (s *Server) handleListSessions(conn *Conn) error {
	snapshots := s.registry.Snapshot()
	views := make([]SessionView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, toSessionView(snap))
	}
	return conn.SendTyped(TypeListSessions, ListSessionsResponse{Sessions: views})
}

func (s *Server) handleSessionInfo(conn *Conn, env *Envelope) error {
	var req SessionInfoRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return conn.SendError(TypeSessionInfo, fmt.Sprintf("decode request: %v", err))
	}

	for _, snap := range s.registry.Snapshot() {
		if snap.Code == req.Code {
			return conn.SendTyped(TypeSessionInfo, SessionInfoResponse{Found: true, Session: toSessionView(snap)})
		}
	}
	return conn.SendTyped(TypeSessionInfo, SessionInfoResponse{Found: false})
}

func (s *Server) handleEvictUser(conn *Conn, env *Envelope) error {
	var req EvictUserRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return conn.SendError(TypeEvictUser, fmt.Sprintf("decode request: %v", err))
	}

	sess, ok := s.registry.Lookup(req.Code)
	if !ok {
		return conn.SendTyped(TypeEvictUser, EvictUserResponse{Evicted: false})
	}
	evicted := sess.Evict(req.Username)
	return conn.SendTyped(TypeEvictUser, EvictUserResponse{Evicted: evicted})
}

func toSessionView(snap session.Summary) SessionView {
	members := make(map[string]protocol.Role, len(snap.Members))
	for user, role := range snap.Members {
		members[user] = role
	}
	return SessionView{Code: snap.Code, HostUsername: snap.HostUsername, Members: members}
}
