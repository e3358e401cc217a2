// Package session holds the in-memory membership state for a hosted
// remote-desktop session: who is connected, under which role, and the
// one-shot join handshake between a host and a waiting participant.
package session

import (
	"fmt"
	"sync"

	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/securechannel"
)

// Connection pairs a secure channel with the role its owner currently
// holds in the session. Role changes (RequestControl/DenyControl,
// MergeUnready) mutate this in place under the owning Session's lock.
type Connection struct {
	Channel *securechannel.Channel
	Role    protocol.Role
}

// pendingJoin is a participant who has been announced to the host but not
// yet approved or denied. Decision carries exactly one value: true if the
// host sent Join (approve), false if the host sent DenyJoin.
type pendingJoin struct {
	conn     Connection
	decision chan bool
}

// Session is one hosted desktop: a host connection, zero or more
// participant/controller connections, and any joins awaiting the host's
// decision. All methods are safe for concurrent use; every worker
// goroutine touching a session's membership holds the session's own lock
// for the duration of its mutation, never the registry's.
type Session struct {
	mu           sync.Mutex
	hostUsername string
	connections  map[string]*Connection
	pending      map[string]*pendingJoin
}

// New creates a session with host as its sole member under RoleHost.
func New(hostUsername string, host Connection) *Session {
	host.Role = protocol.RoleHost
	return &Session{
		hostUsername: hostUsername,
		connections:  map[string]*Connection{hostUsername: &host},
		pending:      make(map[string]*pendingJoin),
	}
}

// HostUsername returns the username of the session's original host,
// regardless of whether that connection is still present.
func (s *Session) HostUsername() string {
	return s.hostUsername
}

// Evict forcibly disconnects a member, closing its secure channel so the
// owning worker goroutine observes a receive error on its next read and
// tears itself down through the usual exit path. Used by the admin
// control socket to kick a misbehaving participant or end a session from
// outside the connection that created it.
func (s *Session) Evict(username string) bool {
	s.mu.Lock()
	c, ok := s.connections[username]
	if ok {
		delete(s.connections, username)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	c.Channel.Close()
	return true
}

// BroadcastAll sends packet to every current member, returning the first
// send error encountered (if any); it still attempts every member.
func (s *Session) BroadcastAll(p protocol.Packet) error {
	s.mu.Lock()
	channels := make([]*securechannel.Channel, 0, len(s.connections))
	for _, c := range s.connections {
		channels = append(channels, c.Channel)
	}
	s.mu.Unlock()

	var firstErr error
	for _, ch := range channels {
		if err := ch.Send(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BroadcastParticipants sends packet to every member currently holding
// RoleParticipant or RoleController — the live-media audience, excluding
// the host itself and any RoleUnready joiner still catching up.
func (s *Session) BroadcastParticipants(p protocol.Packet) error {
	s.mu.Lock()
	channels := make([]*securechannel.Channel, 0, len(s.connections))
	for _, c := range s.connections {
		if c.Role == protocol.RoleParticipant || c.Role == protocol.RoleController {
			channels = append(channels, c.Channel)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, ch := range channels {
		if err := ch.Send(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Host returns the channel of the session's host. Every session has
// exactly one host for its entire lifetime, so this never reports absence
// to callers; a session missing its host is a programming error.
func (s *Session) Host() *securechannel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Role == protocol.RoleHost {
			return c.Channel
		}
	}
	panic("session: no host connection present")
}

// MergeUnready promotes every RoleUnready member to RoleParticipant. The
// host sends this once it has caught a new joiner up on existing screen
// state, so media broadcasts reach them from this point on.
func (s *Session) MergeUnready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Role == protocol.RoleUnready {
			c.Role = protocol.RoleParticipant
		}
	}
}

// Get returns the connection registered under username, if any.
func (s *Session) Get(username string) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[username]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// SetRole updates the role of an existing member, reporting whether that
// member was present.
func (s *Session) SetRole(username string, role protocol.Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[username]
	if !ok {
		return false
	}
	c.Role = role
	return true
}

// Remove drops username from the membership, e.g. on SessionExit.
func (s *Session) Remove(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, username)
}

// Members returns a snapshot of every (username, role) pair currently in
// the session, used to catch a newly admitted joiner up on who else is
// present.
func (s *Session) Members() map[string]protocol.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]protocol.Role, len(s.connections))
	for username, c := range s.connections {
		out[username] = c.Role
	}
	return out
}

// RequestJoin registers username as RoleUnready, pending the host's
// decision, and returns a channel that receives exactly one value: true
// if the host admits them (Join), false if denied (DenyJoin). The caller
// blocks on that channel before proceeding to the participant loop.
func (s *Session) RequestJoin(username string, conn Connection) <-chan bool {
	conn.Role = protocol.RoleUnready
	decision := make(chan bool, 1)

	s.mu.Lock()
	s.pending[username] = &pendingJoin{conn: conn, decision: decision}
	s.mu.Unlock()

	return decision
}

// Admit resolves a pending join as approved: it moves the joiner from
// pending into the full membership, wakes the blocked RequestJoin caller,
// and returns the snapshot of members that existed before the join (for
// the caller to replay as UserUpdate packets) plus the admitted
// connection's channel (to send that snapshot to). ok is false if no such
// pending join exists (e.g. the host already decided, or the joiner hung
// up first).
func (s *Session) Admit(username string) (before map[string]protocol.Role, joined *securechannel.Channel, ok bool) {
	s.mu.Lock()
	pj, found := s.pending[username]
	if !found {
		s.mu.Unlock()
		return nil, nil, false
	}
	delete(s.pending, username)

	before = make(map[string]protocol.Role, len(s.connections))
	for u, c := range s.connections {
		before[u] = c.Role
	}

	conn := pj.conn
	conn.Role = protocol.RoleUnready
	s.connections[username] = &conn
	s.mu.Unlock()

	select {
	case pj.decision <- true:
	default:
	}
	return before, conn.Channel, true
}

// Deny resolves a pending join as refused, waking the blocked RequestJoin
// caller with false. ok is false if no such pending join exists.
func (s *Session) Deny(username string) (ok bool) {
	s.mu.Lock()
	pj, found := s.pending[username]
	if found {
		delete(s.pending, username)
	}
	s.mu.Unlock()
	if !found {
		return false
	}

	select {
	case pj.decision <- false:
	default:
	}
	return true
}

// PendingChannel returns the channel of a username still awaiting the
// host's join decision, used to deliver the Failure result directly
// (Admit/Deny only notify the blocked goroutine, they don't talk to the
// wire themselves).
func (s *Session) PendingChannel(username string) (*securechannel.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pj, ok := s.pending[username]
	if !ok {
		return nil, false
	}
	return pj.conn.Channel, true
}

func (c Connection) String() string {
	return fmt.Sprintf("Connection{role=%s}", c.Role)
}
