package securechannel

import (
	"net"
	"reflect"
	"sync"
	"testing"

	"github.com/streamdesk/server/internal/protocol"
)

func pairedChannels(t *testing.T) (server, client *Channel, serverConn, clientConn net.Conn) {
	t.Helper()

	serverConn, clientConn = net.Pipe()

	var serverErr, clientErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		server, serverErr = NewServer(serverConn)
	}()
	go func() {
		defer wg.Done()
		client, clientErr = NewClient(clientConn)
	}()
	wg.Wait()

	if serverErr != nil {
		t.Fatalf("NewServer: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("NewClient: %v", clientErr)
	}
	return server, client, serverConn, clientConn
}

func TestHandshakeThenRoundTrip(t *testing.T) {
	server, client, _, _ := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	packets := []protocol.Packet{
		protocol.LoginPacket{Username: "alice", PasswordHash: "deadbeef"},
		protocol.ChatPacket{Message: "alice: hi"},
		protocol.ScreenPacket{Bytes: []byte{0x00, 0x00, 0x01, 0x65}},
	}

	for _, p := range packets {
		errc := make(chan error, 1)
		go func() { errc <- client.Send(p) }()

		got, err := server.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if err := <-errc; err != nil {
			t.Fatalf("Send: %v", err)
		}
		if !reflect.DeepEqual(got, p) {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, p)
		}
	}
}

func TestResultRoundTripOverChannel(t *testing.T) {
	server, client, _, _ := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	errc := make(chan error, 1)
	go func() { errc <- server.SendResult(protocol.Success("Signing in")) }()

	got, err := client.ReceiveResult()
	if err != nil {
		t.Fatalf("ReceiveResult: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendResult: %v", err)
	}
	if got != protocol.Success("Signing in") {
		t.Fatalf("got %#v, want Success", got)
	}
}

// TestCloneSharesNonceSpace verifies that concurrent sends from two clones
// of the same channel never reuse a nonce and never interleave frame
// bytes: the peer must be able to decode every sent packet.
func TestCloneSharesNonceSpace(t *testing.T) {
	server, client, _, _ := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	clone := client.Clone()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = client.Send(protocol.ChatPacket{Message: "from-original"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = clone.Send(protocol.ChatPacket{Message: "from-clone"})
		}
	}()

	received := 0
	done := make(chan struct{})
	go func() {
		for received < 2*n {
			if _, err := server.Receive(); err != nil {
				t.Errorf("Receive: %v", err)
				close(done)
				return
			}
			received++
		}
		close(done)
	}()

	wg.Wait()
	<-done

	if received != 2*n {
		t.Fatalf("received %d frames, want %d", received, 2*n)
	}
}

func TestDecryptFailureIsFatal(t *testing.T) {
	server, client, _, clientConn := pairedChannels(t)
	defer server.Close()
	defer client.Close()

	// Write a structurally valid frame (length=4, 12-byte nonce, then 4
	// bytes that are not a valid GCM ciphertext+tag for that nonce)
	// straight onto the wire, bypassing Send's sealing. The server must
	// surface a decrypt error rather than panic or return a zero packet.
	bogus := make([]byte, 4+12+4)
	bogus[3] = 4 // length = 4
	copy(bogus[16:], []byte("bad!"))

	done := make(chan error, 1)
	go func() {
		_, err := clientConn.Write(bogus)
		done <- err
	}()

	// A net.Pipe write completes only once the other end has read it, so
	// the frame is read first and the write's result checked afterwards.
	if _, err := server.Receive(); err == nil {
		t.Fatal("expected Receive to fail on a tampered/bogus frame")
	}
	if err := <-done; err != nil {
		t.Fatalf("write bogus frame: %v", err)
	}
}
