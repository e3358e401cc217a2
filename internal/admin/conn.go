// Package admin implements the local control socket an operator CLI uses
// to inspect and manage a running server: list active sessions, inspect
// one, or evict a misbehaving participant. It is a trusted, same-host
// channel (Unix domain socket or Windows named pipe with restrictive
// permissions), so unlike the public wire protocol it carries plain JSON
// and authenticates with a single shared token rather than a full
// handshake.
package admin

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/streamdesk/server/internal/logging"
)

var log = logging.L("admin")

// MaxMessageSize bounds a single envelope; control messages are tiny, so
// this is generous headroom rather than a tuned limit.
const MaxMessageSize = 1 << 20

// Envelope is the wire shape of every control socket message in both
// directions: a command name, its JSON payload, and an optional error
// string set only on responses.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Conn wraps a raw connection with length-prefixed JSON framing.
type Conn struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// NewConn wraps a raw connection for envelope framing.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send marshals env and writes it as [4-byte BE length][JSON].
func (c *Conn) Send(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("admin: marshal envelope: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("admin: message too large: %d > %d", len(data), MaxMessageSize)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(header); err != nil {
		return fmt.Errorf("admin: write header: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("admin: write payload: %w", err)
	}
	return nil
}

// Recv reads one length-prefixed JSON envelope.
func (c *Conn) Recv() (*Envelope, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, fmt.Errorf("admin: read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxMessageSize {
		return nil, fmt.Errorf("admin: message too large: %d > %d", length, MaxMessageSize)
	}
	if length == 0 {
		return nil, fmt.Errorf("admin: zero-length message")
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, fmt.Errorf("admin: read payload: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("admin: unmarshal envelope: %w", err)
	}
	return &env, nil
}

// SendTyped wraps a typed payload into an Envelope and sends it.
func (c *Conn) SendTyped(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("admin: marshal payload: %w", err)
	}
	return c.Send(&Envelope{Type: msgType, Payload: raw})
}

// SendError sends an error envelope of the given type.
func (c *Conn) SendError(msgType, errMsg string) error {
	return c.Send(&Envelope{Type: msgType, Error: errMsg})
}

// checkToken reports whether supplied matches expected using a
// constant-time comparison, so a slow string equality check never leaks
// how many leading bytes of the token an attacker guessed correctly.
func checkToken(expected, supplied string) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
