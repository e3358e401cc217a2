package session

import (
	"net"
	"testing"

	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/securechannel"
)

// fakeChannel-less approach: securechannel.Channel requires a handshake
// over a real net.Conn, so tests build real channels over net.Pipe.
func newPairedChannel(t *testing.T) (*securechannel.Channel, *securechannel.Channel) {
	t.Helper()
	a, b := net.Pipe()

	type result struct {
		ch  *securechannel.Channel
		err error
	}
	serverc := make(chan result, 1)
	clientc := make(chan result, 1)
	go func() {
		ch, err := securechannel.NewServer(a)
		serverc <- result{ch, err}
	}()
	go func() {
		ch, err := securechannel.NewClient(b)
		clientc <- result{ch, err}
	}()

	sr, cr := <-serverc, <-clientc
	if sr.err != nil {
		t.Fatalf("NewServer: %v", sr.err)
	}
	if cr.err != nil {
		t.Fatalf("NewClient: %v", cr.err)
	}
	return sr.ch, cr.ch
}

func TestNewSessionHasHostRole(t *testing.T) {
	host, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: host})

	conn, ok := s.Get("alice")
	if !ok {
		t.Fatal("host not present after New")
	}
	if conn.Role != protocol.RoleHost {
		t.Fatalf("host role = %v, want RoleHost", conn.Role)
	}
}

func TestHostReturnsHostChannel(t *testing.T) {
	host, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: host})

	if s.Host() != host {
		t.Fatal("Host() did not return the registered host channel")
	}
}

func TestRequestJoinThenAdmit(t *testing.T) {
	hostCh, _ := newPairedChannel(t)
	joinerCh, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	decision := s.RequestJoin("bob", Connection{Channel: joinerCh})

	before, joinedChannel, ok := s.Admit("bob")
	if !ok {
		t.Fatal("Admit reported no pending join for bob")
	}
	if joinedChannel != joinerCh {
		t.Fatal("Admit returned the wrong channel")
	}
	if _, hostPresent := before["alice"]; !hostPresent {
		t.Fatal("Admit's before-snapshot missing the host")
	}

	select {
	case allowed := <-decision:
		if !allowed {
			t.Fatal("decision channel delivered false, want true")
		}
	default:
		t.Fatal("decision channel had no value after Admit")
	}

	conn, ok := s.Get("bob")
	if !ok {
		t.Fatal("bob not present in membership after Admit")
	}
	if conn.Role != protocol.RoleUnready {
		t.Fatalf("bob's role = %v, want RoleUnready", conn.Role)
	}
}

func TestRequestJoinThenDeny(t *testing.T) {
	hostCh, _ := newPairedChannel(t)
	joinerCh, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	decision := s.RequestJoin("bob", Connection{Channel: joinerCh})

	if !s.Deny("bob") {
		t.Fatal("Deny reported no pending join for bob")
	}

	select {
	case allowed := <-decision:
		if allowed {
			t.Fatal("decision channel delivered true, want false")
		}
	default:
		t.Fatal("decision channel had no value after Deny")
	}

	if _, ok := s.Get("bob"); ok {
		t.Fatal("bob present in membership after being denied")
	}
}

func TestAdmitUnknownUsernameFails(t *testing.T) {
	hostCh, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	if _, _, ok := s.Admit("ghost"); ok {
		t.Fatal("Admit succeeded for a username with no pending join")
	}
}

func TestMergeUnreadyPromotesOnlyUnready(t *testing.T) {
	hostCh, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	joinerCh, _ := newPairedChannel(t)
	s.RequestJoin("bob", Connection{Channel: joinerCh})
	s.Admit("bob")

	controllerCh, _ := newPairedChannel(t)
	s.RequestJoin("carol", Connection{Channel: controllerCh})
	s.Admit("carol")
	s.SetRole("carol", protocol.RoleController)

	s.MergeUnready()

	bob, _ := s.Get("bob")
	if bob.Role != protocol.RoleParticipant {
		t.Fatalf("bob's role after MergeUnready = %v, want RoleParticipant", bob.Role)
	}
	carol, _ := s.Get("carol")
	if carol.Role != protocol.RoleController {
		t.Fatalf("carol's role changed by MergeUnready: %v", carol.Role)
	}
	alice, _ := s.Get("alice")
	if alice.Role != protocol.RoleHost {
		t.Fatalf("host role changed by MergeUnready: %v", alice.Role)
	}
}

func TestBroadcastParticipantsExcludesHostAndUnready(t *testing.T) {
	hostCh, hostPeer := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	participantCh, participantPeer := newPairedChannel(t)
	s.RequestJoin("bob", Connection{Channel: participantCh})
	s.Admit("bob")
	// Admit leaves a joiner Unready; promote bob as MergeUnready would
	// once the host has caught him up, so this test can tell a real
	// participant apart from carol, who stays Unready below.
	s.SetRole("bob", protocol.RoleParticipant)

	unreadyCh, unreadyPeer := newPairedChannel(t)
	s.RequestJoin("carol", Connection{Channel: unreadyCh})
	s.Admit("carol")

	done := make(chan struct{})
	go func() {
		_, _ = participantPeer.Receive()
		close(done)
	}()

	errc := make(chan error, 1)
	go func() { errc <- s.BroadcastParticipants(protocol.ChatPacket{Message: "hi"}) }()

	<-done
	if err := <-errc; err != nil {
		t.Fatalf("BroadcastParticipants: %v", err)
	}

	// carol (unready) and alice (host) must not have received anything;
	// their peers are left undrained deliberately, so a second receive on
	// the shared pipe would block forever if a packet had been sent.
	_ = unreadyPeer
	_ = hostPeer
}

func TestRemoveDropsMember(t *testing.T) {
	hostCh, _ := newPairedChannel(t)
	s := New("alice", Connection{Channel: hostCh})

	joinerCh, _ := newPairedChannel(t)
	s.RequestJoin("bob", Connection{Channel: joinerCh})
	s.Admit("bob")

	s.Remove("bob")
	if _, ok := s.Get("bob"); ok {
		t.Fatal("bob still present after Remove")
	}
}

func TestRegistryCreateLookupDestroy(t *testing.T) {
	r := NewRegistry()
	hostCh, _ := newPairedChannel(t)

	code, sess := r.Create("alice", Connection{Channel: hostCh})
	if code < 100_000 || code >= 1_000_000 {
		t.Fatalf("code %d out of range", code)
	}

	got, ok := r.Lookup(code)
	if !ok || got != sess {
		t.Fatal("Lookup did not return the created session")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	r.Destroy(code)
	if _, ok := r.Lookup(code); ok {
		t.Fatal("session still present after Destroy")
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d after Destroy, want 0", r.Count())
	}
}

func TestRegistryAllocatesDistinctCodes(t *testing.T) {
	r := NewRegistry()
	seen := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		hostCh, _ := newPairedChannel(t)
		code, _ := r.Create("host", Connection{Channel: hostCh})
		if seen[code] {
			t.Fatalf("code %d allocated twice", code)
		}
		seen[code] = true
	}
}
