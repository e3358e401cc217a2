//go:build darwin && !cgo

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
// via LOCAL_PEERCRED (xucred). This is the pure-Go (no-cgo) fallback for
// macOS, used when the binary is built with CGO_ENABLED=0.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("admin: not a unix connection")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("admin: get syscall conn: %w", err)
	}

	var pid int
	var uid, gid uint32
	var credErr error

	err = raw.Control(func(fd uintptr) {
		pidVal, err := unix.GetsockoptInt(int(fd), unix.SOL_LOCAL, 0x002) // LOCAL_PEERPID
		if err != nil {
			credErr = fmt.Errorf("getsockopt LOCAL_PEERPID: %w", err)
			return
		}
		pid = pidVal

		xcred, err := unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
		if err != nil {
			credErr = fmt.Errorf("getsockopt LOCAL_PEERCRED: %w", err)
			return
		}
		uid = xcred.Uid
		if len(xcred.Groups) > 0 {
			gid = xcred.Groups[0]
		}
	})
	if err != nil {
		return nil, fmt.Errorf("admin: control: %w", err)
	}
	if credErr != nil {
		return nil, credErr
	}

	exePath, err := os.Executable()
	if err != nil {
		exePath = ""
	}

	return &PeerCredentials{
		PID:        pid,
		UID:        uid,
		GID:        gid,
		BinaryPath: exePath,
	}, nil
}

// IdentityKey returns the platform identity key for this peer: the
// kernel-verified UID, as a string.
func (p *PeerCredentials) IdentityKey() string {
	return strconv.FormatUint(uint64(p.UID), 10)
}
