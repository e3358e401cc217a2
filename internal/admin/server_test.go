package admin

import (
	"net"
	"testing"
	"time"

	"github.com/streamdesk/server/internal/securechannel"
	"github.com/streamdesk/server/internal/session"
)

type loopbackListener struct {
	conns chan net.Conn
}

func newLoopbackListener() *loopbackListener {
	return &loopbackListener{conns: make(chan net.Conn, 8)}
}

func (l *loopbackListener) Accept() (net.Conn, error) {
	c, ok := <-l.conns
	if !ok {
		return nil, net.ErrClosed
	}
	return c, nil
}

func (l *loopbackListener) Close() error {
	close(l.conns)
	return nil
}

func (l *loopbackListener) Addr() net.Addr { return loopbackAddr{} }

type loopbackAddr struct{}

func (loopbackAddr) Network() string { return "pipe" }
func (loopbackAddr) String() string  { return "loopback" }

func startTestServer(t *testing.T, token string, registry Sessions) *Conn {
	t.Helper()
	listener := newLoopbackListener()
	srv := NewServer(listener, token, registry)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	serverSide, clientSide := net.Pipe()
	listener.conns <- serverSide
	return NewConn(clientSide)
}

func TestAuthRejectsWrongToken(t *testing.T) {
	registry := session.NewRegistry()
	conn := startTestServer(t, "correct-token", registry)

	if err := conn.SendTyped(TypeAuth, AuthRequest{Token: "wrong"}); err != nil {
		t.Fatalf("Send auth: %v", err)
	}

	conn.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Recv(); err == nil {
		t.Fatal("expected the connection to close without a response on bad token")
	}
}

func TestAuthAcceptsCorrectTokenThenListsSessions(t *testing.T) {
	registry := session.NewRegistry()
	conn := startTestServer(t, "correct-token", registry)

	if err := conn.SendTyped(TypeAuth, AuthRequest{Token: "correct-token"}); err != nil {
		t.Fatalf("Send auth: %v", err)
	}
	env, err := conn.Recv()
	if err != nil {
		t.Fatalf("Recv auth response: %v", err)
	}
	if env.Type != TypeAuth || env.Error != "" {
		t.Fatalf("auth response = %#v, want success", env)
	}

	if err := conn.SendTyped(TypeListSessions, ListSessionsRequest{}); err != nil {
		t.Fatalf("Send list_sessions: %v", err)
	}
	env, err = conn.Recv()
	if err != nil {
		t.Fatalf("Recv list_sessions response: %v", err)
	}
	if env.Type != TypeListSessions {
		t.Fatalf("response type = %q, want %q", env.Type, TypeListSessions)
	}
}

func TestEvictUserClosesTargetChannel(t *testing.T) {
	registry := session.NewRegistry()
	hostServerConn, hostClientConn := net.Pipe()
	defer hostClientConn.Close()

	hostErrc := make(chan error, 1)
	var hostCh *securechannel.Channel
	go func() {
		var err error
		hostCh, err = securechannel.NewServer(hostServerConn)
		hostErrc <- err
	}()
	clientCh, err := securechannel.NewClient(hostClientConn)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := <-hostErrc; err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer clientCh.Close()

	code, sess := registry.Create("alice", session.Connection{Channel: hostCh})
	_ = code

	conn := startTestServer(t, "t", registry)
	if err := conn.SendTyped(TypeAuth, AuthRequest{Token: "t"}); err != nil {
		t.Fatalf("Send auth: %v", err)
	}
	if _, err := conn.Recv(); err != nil {
		t.Fatalf("Recv auth response: %v", err)
	}

	if err := conn.SendTyped(TypeEvictUser, EvictUserRequest{Code: code, Username: "alice"}); err != nil {
		t.Fatalf("Send evict_user: %v", err)
	}
	env, err := conn.Recv()
	if err != nil {
		t.Fatalf("Recv evict_user response: %v", err)
	}
	if env.Type != TypeEvictUser {
		t.Fatalf("response type = %q, want %q", env.Type, TypeEvictUser)
	}

	if _, ok := sess.Get("alice"); ok {
		t.Fatal("expected alice removed from session membership after eviction")
	}

	// Evict closed the host's end of the secure channel directly; the
	// peer observes that as a receive error rather than having to be
	// closed itself.
	_, recvErr := clientCh.Receive()
	if recvErr == nil {
		t.Fatal("expected Receive to fail once the host side was evicted")
	}
}
