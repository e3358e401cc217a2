// Package protocol implements the tagged-union wire codec for StreamDesk's
// control and media plane: a single byte tag identifies the packet kind,
// followed by a kind-specific body with variable-length fields individually
// length-prefixed. Tag values and body layouts are part of the wire
// contract and must never be renumbered once shipped.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies a packet kind on the wire. Values are stable across peers.
type Tag uint8

const (
	TagNone Tag = iota
	TagShutdown
	TagSignOut
	TagLogin
	TagRegister
	TagHost
	TagJoin
	TagDenyJoin
	TagUserUpdate
	TagScreen
	TagControl
	TagRequestControl
	TagDenyControl
	TagChat
	TagMergeUnready
	TagSessionExit
	TagSessionEnd
	TagRecordingName
	TagWatchRecording
	TagSeekInit
	TagSeekTo
)

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

var tagNames = map[Tag]string{
	TagNone:            "None",
	TagShutdown:        "Shutdown",
	TagSignOut:         "SignOut",
	TagLogin:           "Login",
	TagRegister:        "Register",
	TagHost:            "Host",
	TagJoin:            "Join",
	TagDenyJoin:        "DenyJoin",
	TagUserUpdate:      "UserUpdate",
	TagScreen:          "Screen",
	TagControl:         "Control",
	TagRequestControl:  "RequestControl",
	TagDenyControl:     "DenyControl",
	TagChat:            "Chat",
	TagMergeUnready:    "MergeUnready",
	TagSessionExit:     "SessionExit",
	TagSessionEnd:      "SessionEnd",
	TagRecordingName:   "RecordingName",
	TagWatchRecording:  "WatchRecording",
	TagSeekInit:        "SeekInit",
	TagSeekTo:          "SeekTo",
}

// Role is a connection's role within a session, as advertised to peers in
// UserUpdate packets. It also doubles as the "Leaving" sentinel used only
// in departure broadcasts.
type Role uint8

const (
	RoleHost Role = iota
	RoleController
	RoleParticipant
	RoleUnready
	RoleLeaving
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "Host"
	case RoleController:
		return "Controller"
	case RoleParticipant:
		return "Participant"
	case RoleUnready:
		return "Unready"
	case RoleLeaving:
		return "Leaving"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Packet is any decoded wire message. Concrete types below each pin down
// their Tag(); the decoder never needs more than the Tag and the type's
// fields, so there is no separate body-length field on Packet itself.
type Packet interface {
	Tag() Tag
}

type NonePacket struct{}

func (NonePacket) Tag() Tag { return TagNone }

type ShutdownPacket struct{}

func (ShutdownPacket) Tag() Tag { return TagShutdown }

type SignOutPacket struct{}

func (SignOutPacket) Tag() Tag { return TagSignOut }

type LoginPacket struct {
	Username     string
	PasswordHash string
}

func (LoginPacket) Tag() Tag { return TagLogin }

type RegisterPacket struct {
	Username     string
	PasswordHash string
}

func (RegisterPacket) Tag() Tag { return TagRegister }

type HostPacket struct{}

func (HostPacket) Tag() Tag { return TagHost }

type JoinPacket struct {
	Code     uint32
	Username string
}

func (JoinPacket) Tag() Tag { return TagJoin }

type DenyJoinPacket struct {
	Username string
}

func (DenyJoinPacket) Tag() Tag { return TagDenyJoin }

type UserUpdatePacket struct {
	Role        Role
	JoinedBefore bool
	Username    string
}

func (UserUpdatePacket) Tag() Tag { return TagUserUpdate }

// ScreenPacket carries exactly one NAL unit, including its 3-byte Annex-B
// start code (0x00 0x00 0x01).
type ScreenPacket struct {
	Bytes []byte
}

func (ScreenPacket) Tag() Tag { return TagScreen }

// ControlPayload is the oneof carried inside a ControlPacket.
type ControlPayload interface {
	controlTag() uint8
}

const (
	controlTagMouseMove  uint8 = 0
	controlTagMouseClick uint8 = 1
	controlTagKeyboard   uint8 = 2
	controlTagScroll     uint8 = 3
)

type MouseMove struct {
	X, Y uint32
}

func (MouseMove) controlTag() uint8 { return controlTagMouseMove }

type MouseClick struct {
	X, Y    uint32
	Pressed bool
	Button  uint8
}

func (MouseClick) controlTag() uint8 { return controlTagMouseClick }

type Keyboard struct {
	Pressed bool
	Key     uint16
}

func (Keyboard) controlTag() uint8 { return controlTagKeyboard }

type Scroll struct {
	Delta int32
}

func (Scroll) controlTag() uint8 { return controlTagScroll }

type ControlPacket struct {
	Payload ControlPayload
}

func (ControlPacket) Tag() Tag { return TagControl }

type RequestControlPacket struct {
	Username string
}

func (RequestControlPacket) Tag() Tag { return TagRequestControl }

type DenyControlPacket struct {
	Username string
}

func (DenyControlPacket) Tag() Tag { return TagDenyControl }

type ChatPacket struct {
	Message string
}

func (ChatPacket) Tag() Tag { return TagChat }

type MergeUnreadyPacket struct{}

func (MergeUnreadyPacket) Tag() Tag { return TagMergeUnready }

type SessionExitPacket struct{}

func (SessionExitPacket) Tag() Tag { return TagSessionExit }

type SessionEndPacket struct{}

func (SessionEndPacket) Tag() Tag { return TagSessionEnd }

type RecordingNamePacket struct {
	ID   int32
	Name string
}

func (RecordingNamePacket) Tag() Tag { return TagRecordingName }

type WatchRecordingPacket struct {
	ID int32
}

func (WatchRecordingPacket) Tag() Tag { return TagWatchRecording }

type SeekInitPacket struct{}

func (SeekInitPacket) Tag() Tag { return TagSeekInit }

type SeekToPacket struct {
	TimeSeconds int32
}

func (SeekToPacket) Tag() Tag { return TagSeekTo }

// --- string/byte-slice helpers: 4-byte big-endian length prefix, as the
// codec uses throughout for variable-length fields. ---

func putString(buf []byte, s string) []byte {
	return putBytes(buf, []byte(s))
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, b...)
	return buf
}

func getString(b []byte) (string, []byte, error) {
	raw, rest, err := getBytes(b)
	if err != nil {
		return "", nil, err
	}
	return string(raw), rest, nil
}

func getBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("protocol: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("protocol: truncated field, want %d bytes, have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
