//go:build windows

package admin

import (
	"fmt"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PeerCredentials holds the verified identity of a control socket peer.
type PeerCredentials struct {
	PID        int
	BinaryPath string
	SID        string
}

var (
	modkernel32                      = windows.NewLazySystemDLL("kernel32.dll")
	procGetNamedPipeClientProcessId = modkernel32.NewProc("GetNamedPipeClientProcessId")
)

// GetPeerCredentials returns the verified identity of a named pipe client
// via GetNamedPipeClientProcessId + OpenProcessToken + GetTokenInformation.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	type handleConn interface {
		Fd() uintptr
	}
	hc, ok := conn.(handleConn)
	if !ok {
		return nil, fmt.Errorf("admin: unable to get peer credentials from connection type %T", conn)
	}

	handle := hc.Fd()

	var clientPID uint32
	r1, _, err := procGetNamedPipeClientProcessId.Call(handle, uintptr(unsafe.Pointer(&clientPID)))
	if r1 == 0 {
		return nil, fmt.Errorf("admin: GetNamedPipeClientProcessId: %w", err)
	}

	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, clientPID)
	if err != nil {
		return nil, fmt.Errorf("admin: OpenProcess(%d): %w", clientPID, err)
	}
	defer windows.CloseHandle(proc)

	var pathBuf [windows.MAX_PATH]uint16
	pathLen := uint32(len(pathBuf))
	if err := windows.QueryFullProcessImageName(proc, 0, &pathBuf[0], &pathLen); err != nil {
		return nil, fmt.Errorf("admin: QueryFullProcessImageName: %w", err)
	}
	binaryPath := syscall.UTF16ToString(pathBuf[:pathLen])

	var token windows.Token
	if err := windows.OpenProcessToken(proc, windows.TOKEN_QUERY, &token); err != nil {
		return nil, fmt.Errorf("admin: OpenProcessToken: %w", err)
	}
	defer token.Close()

	tokenUser, err := token.GetTokenUser()
	if err != nil {
		return nil, fmt.Errorf("admin: GetTokenUser: %w", err)
	}

	return &PeerCredentials{
		PID:        int(clientPID),
		BinaryPath: binaryPath,
		SID:        tokenUser.User.Sid.String(),
	}, nil
}

// IdentityKey returns the platform identity key for this peer: the
// Windows security identifier.
func (p *PeerCredentials) IdentityKey() string {
	return p.SID
}
