//go:build !windows

package admin

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Listen opens the control socket at path, a Unix domain socket. Any
// stale socket file from a previous, uncleanly-terminated run is removed
// first; the resulting socket is chmod'd 0600 so only the owning user
// (the server process's own account, typically root or a dedicated
// service account) can connect.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("admin: remove stale socket %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("admin: mkdir %s: %w", dir, err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("admin: listen %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("admin: chmod %s: %w", path, err)
	}

	return listener, nil
}
