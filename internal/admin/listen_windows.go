//go:build windows

package admin

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity restricts the control pipe to SYSTEM and the local
// Administrators group; an operator CLI run from an elevated prompt is
// the only expected caller.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GA;;;BA)"

// Listen opens the control socket at path, a Windows named pipe.
func Listen(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}

	listener, err := winio.ListenPipe(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("admin: listen pipe %s: %w", path, err)
	}
	return listener, nil
}
