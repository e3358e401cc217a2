package session

import (
	"math/rand/v2"
	"sync"

	"github.com/streamdesk/server/internal/protocol"
)

// Registry maps a session's 6-digit join code to its Session. One
// process-wide Registry backs every connection handler.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint32]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// Create allocates a fresh, currently-unused 6-digit code, registers a new
// Session hosted by hostUsername, and returns both. The registry lock is
// held only long enough to reserve the code and insert the session; the
// returned Session has its own independent lock for membership changes.
func (r *Registry) Create(hostUsername string, host Connection) (uint32, *Session) {
	sess := New(hostUsername, host)

	r.mu.Lock()
	code := allocateCode(r.sessions)
	r.sessions[code] = sess
	r.mu.Unlock()

	return code, sess
}

// Lookup returns the session registered under code, if any. Callers must
// acquire the returned Session's own lock before mutating it; they must
// never hold the Registry's lock while doing so.
func (r *Registry) Lookup(code uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Destroy removes code from the registry, e.g. once its host sends
// SessionExit.
func (r *Registry) Destroy(code uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// Count returns the number of currently registered sessions, used by the
// health monitor's registry check.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Summary is a point-in-time snapshot of one session's membership,
// reported to the admin control socket.
type Summary struct {
	Code         uint32
	HostUsername string
	Members      map[string]protocol.Role
}

// Snapshot returns a Summary for every currently registered session.
func (r *Registry) Snapshot() []Summary {
	r.mu.Lock()
	sessions := make(map[uint32]*Session, len(r.sessions))
	for code, sess := range r.sessions {
		sessions[code] = sess
	}
	r.mu.Unlock()

	out := make([]Summary, 0, len(sessions))
	for code, sess := range sessions {
		out = append(out, Summary{
			Code:         code,
			HostUsername: sess.HostUsername(),
			Members:      sess.Members(),
		})
	}
	return out
}

// allocateCode samples a 6-digit code in [100000, 1000000) and retries on
// collision. Call sites hold r.mu, so the retry loop never races a
// concurrent Create.
func allocateCode(sessions map[uint32]*Session) uint32 {
	for {
		code := uint32(100_000 + rand.IntN(900_000))
		if _, taken := sessions[code]; !taken {
			return code
		}
	}
}
