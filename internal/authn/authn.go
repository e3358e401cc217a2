// Package authn orchestrates the login/register handshake: hashing is
// the caller's concern (the wire already carries a password hash), this
// package maps store results and single-session-per-user enforcement
// into the same outcomes and messages the original service used.
package authn

import (
	"context"
	"errors"
	"sync"

	"github.com/streamdesk/server/internal/store"
)

// Outcome is the result of a Login or Register attempt: exactly one of
// UserID/Message is meaningful depending on OK.
type Outcome struct {
	OK       bool
	Username string
	UserID   int32
	Message  string
}

// LoggedInSet tracks which usernames currently hold an active session,
// enforcing "one login per account" the same way the original service's
// shared HashSet did.
type LoggedInSet struct {
	mu    sync.Mutex
	users map[string]bool
}

// NewLoggedInSet returns an empty set.
func NewLoggedInSet() *LoggedInSet {
	return &LoggedInSet{users: make(map[string]bool)}
}

// TryAdd adds username if absent, reporting whether it was newly added.
func (s *LoggedInSet) TryAdd(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[username] {
		return false
	}
	s.users[username] = true
	return true
}

// Remove clears username, e.g. on SignOut or disconnect.
func (s *LoggedInSet) Remove(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// Authenticator wires a credential Store to a LoggedInSet.
type Authenticator struct {
	store    store.Store
	loggedIn *LoggedInSet
}

// New returns an Authenticator backed by st, tracking sessions in loggedIn.
func New(st store.Store, loggedIn *LoggedInSet) *Authenticator {
	return &Authenticator{store: st, loggedIn: loggedIn}
}

// Login authenticates username/passwordHash against the store and
// enforces single-session-per-account. The Outcome's Message is always
// suitable to send back verbatim as a Result.
func (a *Authenticator) Login(ctx context.Context, username, passwordHash string) Outcome {
	userID, err := a.store.Authenticate(ctx, username, passwordHash)
	if errors.Is(err, store.ErrUserNotFound) {
		return Outcome{OK: false, Message: "Username or password are incorrect."}
	}
	if err != nil {
		return Outcome{OK: false, Message: "Error signing in."}
	}

	if !a.loggedIn.TryAdd(username) {
		return Outcome{OK: false, Message: "User already logged in elsewhere."}
	}

	return Outcome{OK: true, Username: username, UserID: userID, Message: "Signing in"}
}

// Register validates and inserts a new account, then logs it in exactly
// as Login would.
func (a *Authenticator) Register(ctx context.Context, username, passwordHash string) Outcome {
	if username == "" {
		return Outcome{OK: false, Message: "Username cannot be empty."}
	}
	if !store.ValidUsername(username) {
		return Outcome{OK: false, Message: "Username can only contain English letters and numbers."}
	}

	userID, err := a.store.Register(ctx, username, passwordHash)
	if errors.Is(err, store.ErrUsernameTaken) {
		return Outcome{OK: false, Message: "Username already taken."}
	}
	if err != nil {
		return Outcome{OK: false, Message: "Error signing up."}
	}

	a.loggedIn.TryAdd(username)
	return Outcome{OK: true, Username: username, UserID: userID, Message: "Signing in"}
}

// SignOut releases username's logged-in slot.
func (a *Authenticator) SignOut(username string) {
	a.loggedIn.Remove(username)
}
