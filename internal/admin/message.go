package admin

import "github.com/streamdesk/server/internal/protocol"

// Envelope Type values exchanged over the control socket.
const (
	TypeAuth         = "auth"
	TypeListSessions = "list_sessions"
	TypeSessionInfo  = "session_info"
	TypeEvictUser    = "evict_user"
)

// AuthRequest is the first message every control connection must send;
// the server closes the connection without a response if Token doesn't
// match its configured admin token.
type AuthRequest struct {
	Token string `json:"token"`
}

// AuthResponse acks a successful AuthRequest. Failure is reported by
// closing the connection, not by sending this with an error, since an
// unauthenticated peer shouldn't learn anything about why it failed.
type AuthResponse struct{}

// ListSessionsRequest has no fields; it asks for every active session.
type ListSessionsRequest struct{}

// SessionView is one session's membership as reported to an operator.
type SessionView struct {
	Code         uint32                  `json:"code"`
	HostUsername string                  `json:"host_username"`
	Members      map[string]protocol.Role `json:"members"`
}

// ListSessionsResponse reports every currently active session.
type ListSessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SessionInfoRequest asks for one session's detail by its join code.
type SessionInfoRequest struct {
	Code uint32 `json:"code"`
}

// SessionInfoResponse carries the requested session, or Found=false if no
// session is registered under that code.
type SessionInfoResponse struct {
	Found   bool        `json:"found"`
	Session SessionView `json:"session"`
}

// EvictUserRequest asks the server to forcibly disconnect one member of
// one session.
type EvictUserRequest struct {
	Code     uint32 `json:"code"`
	Username string `json:"username"`
}

// EvictUserResponse reports whether the named member was present and
// evicted.
type EvictUserResponse struct {
	Evicted bool `json:"evicted"`
}
