package worker

import (
	"net"
	"sync"
	"testing"

	"github.com/streamdesk/server/internal/securechannel"
)

// pairedChannels sets up a handshaken client/server securechannel pair
// over an in-memory net.Pipe, mirroring the helper securechannel's own
// tests use.
func pairedChannels(t *testing.T) (server, client *securechannel.Channel) {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	var serverErr, clientErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		server, serverErr = securechannel.NewServer(serverConn)
	}()
	go func() {
		defer wg.Done()
		client, clientErr = securechannel.NewClient(clientConn)
	}()
	wg.Wait()

	if serverErr != nil {
		t.Fatalf("NewServer: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("NewClient: %v", clientErr)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}
