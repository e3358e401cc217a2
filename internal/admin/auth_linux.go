//go:build linux

package admin

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PeerCredentials holds the verified identity of a control socket peer.
type PeerCredentials struct {
	PID        int
	UID        uint32
	GID        uint32
	BinaryPath string
}

// GetPeerCredentials returns the kernel-verified PID/UID/GID of the peer
// via SO_PEERCRED and resolves the binary path from /proc/<pid>/exe.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("admin: not a unix connection")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("admin: get syscall conn: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("admin: control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("admin: getsockopt SO_PEERCRED: %w", credErr)
	}

	exePath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", cred.Pid))
	if err != nil {
		return nil, fmt.Errorf("admin: readlink /proc/%d/exe: %w", cred.Pid, err)
	}

	return &PeerCredentials{
		PID:        int(cred.Pid),
		UID:        cred.Uid,
		GID:        cred.Gid,
		BinaryPath: exePath,
	}, nil
}

// IdentityKey returns the platform identity key for this peer: the
// kernel-verified UID, as a string.
func (p *PeerCredentials) IdentityKey() string {
	return strconv.FormatUint(uint64(p.UID), 10)
}
