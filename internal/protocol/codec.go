package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a Packet to its wire representation: a 1-byte tag
// followed by the kind's body. The result is the plaintext that the
// secure channel seals; it carries no outer length prefix of its own
// (that is added by the secure channel's frame header).
func Encode(p Packet) ([]byte, error) {
	buf := []byte{byte(p.Tag())}

	switch v := p.(type) {
	case NonePacket, ShutdownPacket, SignOutPacket, HostPacket,
		MergeUnreadyPacket, SessionExitPacket, SessionEndPacket, SeekInitPacket:
		// no body

	case LoginPacket:
		buf = putString(buf, v.Username)
		buf = putString(buf, v.PasswordHash)

	case RegisterPacket:
		buf = putString(buf, v.Username)
		buf = putString(buf, v.PasswordHash)

	case JoinPacket:
		var codeBuf [4]byte
		binary.BigEndian.PutUint32(codeBuf[:], v.Code)
		buf = append(buf, codeBuf[:]...)
		buf = putString(buf, v.Username)

	case DenyJoinPacket:
		buf = putString(buf, v.Username)

	case UserUpdatePacket:
		buf = append(buf, byte(v.Role), boolByte(v.JoinedBefore))
		buf = putString(buf, v.Username)

	case ScreenPacket:
		buf = putBytes(buf, v.Bytes)

	case ControlPacket:
		body, err := encodeControlPayload(v.Payload)
		if err != nil {
			return nil, err
		}
		buf = append(buf, body...)

	case RequestControlPacket:
		buf = putString(buf, v.Username)

	case DenyControlPacket:
		buf = putString(buf, v.Username)

	case ChatPacket:
		buf = putString(buf, v.Message)

	case RecordingNamePacket:
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], uint32(v.ID))
		buf = append(buf, idBuf[:]...)
		buf = putString(buf, v.Name)

	case WatchRecordingPacket:
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], uint32(v.ID))
		buf = append(buf, idBuf[:]...)

	case SeekToPacket:
		var tBuf [4]byte
		binary.BigEndian.PutUint32(tBuf[:], uint32(v.TimeSeconds))
		buf = append(buf, tBuf[:]...)

	default:
		return nil, fmt.Errorf("protocol: unknown packet type %T", p)
	}

	return buf, nil
}

func encodeControlPayload(payload ControlPayload) ([]byte, error) {
	buf := []byte{payload.controlTag()}
	switch v := payload.(type) {
	case MouseMove:
		var xy [8]byte
		binary.BigEndian.PutUint32(xy[0:4], v.X)
		binary.BigEndian.PutUint32(xy[4:8], v.Y)
		buf = append(buf, xy[:]...)
	case MouseClick:
		var xy [8]byte
		binary.BigEndian.PutUint32(xy[0:4], v.X)
		binary.BigEndian.PutUint32(xy[4:8], v.Y)
		buf = append(buf, xy[:]...)
		buf = append(buf, boolByte(v.Pressed), v.Button)
	case Keyboard:
		var keyBuf [2]byte
		binary.BigEndian.PutUint16(keyBuf[:], v.Key)
		buf = append(buf, boolByte(v.Pressed))
		buf = append(buf, keyBuf[:]...)
	case Scroll:
		var deltaBuf [4]byte
		binary.BigEndian.PutUint32(deltaBuf[:], uint32(v.Delta))
		buf = append(buf, deltaBuf[:]...)
	default:
		return nil, fmt.Errorf("protocol: unknown control payload %T", payload)
	}
	return buf, nil
}

// Decode parses a plaintext packet body as produced by Encode.
func Decode(data []byte) (Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("protocol: empty packet")
	}
	tag := Tag(data[0])
	body := data[1:]

	switch tag {
	case TagNone:
		return NonePacket{}, nil
	case TagShutdown:
		return ShutdownPacket{}, nil
	case TagSignOut:
		return SignOutPacket{}, nil
	case TagHost:
		return HostPacket{}, nil
	case TagMergeUnready:
		return MergeUnreadyPacket{}, nil
	case TagSessionExit:
		return SessionExitPacket{}, nil
	case TagSessionEnd:
		return SessionEndPacket{}, nil
	case TagSeekInit:
		return SeekInitPacket{}, nil

	case TagLogin:
		username, rest, err := getString(body)
		if err != nil {
			return nil, err
		}
		hash, _, err := getString(rest)
		if err != nil {
			return nil, err
		}
		return LoginPacket{Username: username, PasswordHash: hash}, nil

	case TagRegister:
		username, rest, err := getString(body)
		if err != nil {
			return nil, err
		}
		hash, _, err := getString(rest)
		if err != nil {
			return nil, err
		}
		return RegisterPacket{Username: username, PasswordHash: hash}, nil

	case TagJoin:
		if len(body) < 4 {
			return nil, fmt.Errorf("protocol: truncated Join code")
		}
		code := binary.BigEndian.Uint32(body[:4])
		username, _, err := getString(body[4:])
		if err != nil {
			return nil, err
		}
		return JoinPacket{Code: code, Username: username}, nil

	case TagDenyJoin:
		username, _, err := getString(body)
		if err != nil {
			return nil, err
		}
		return DenyJoinPacket{Username: username}, nil

	case TagUserUpdate:
		if len(body) < 2 {
			return nil, fmt.Errorf("protocol: truncated UserUpdate header")
		}
		role := Role(body[0])
		joinedBefore := body[1] != 0
		username, _, err := getString(body[2:])
		if err != nil {
			return nil, err
		}
		return UserUpdatePacket{Role: role, JoinedBefore: joinedBefore, Username: username}, nil

	case TagScreen:
		bytes, _, err := getBytes(body)
		if err != nil {
			return nil, err
		}
		return ScreenPacket{Bytes: bytes}, nil

	case TagControl:
		payload, err := decodeControlPayload(body)
		if err != nil {
			return nil, err
		}
		return ControlPacket{Payload: payload}, nil

	case TagRequestControl:
		username, _, err := getString(body)
		if err != nil {
			return nil, err
		}
		return RequestControlPacket{Username: username}, nil

	case TagDenyControl:
		username, _, err := getString(body)
		if err != nil {
			return nil, err
		}
		return DenyControlPacket{Username: username}, nil

	case TagChat:
		message, _, err := getString(body)
		if err != nil {
			return nil, err
		}
		return ChatPacket{Message: message}, nil

	case TagRecordingName:
		if len(body) < 4 {
			return nil, fmt.Errorf("protocol: truncated RecordingName id")
		}
		id := int32(binary.BigEndian.Uint32(body[:4]))
		name, _, err := getString(body[4:])
		if err != nil {
			return nil, err
		}
		return RecordingNamePacket{ID: id, Name: name}, nil

	case TagWatchRecording:
		if len(body) < 4 {
			return nil, fmt.Errorf("protocol: truncated WatchRecording id")
		}
		id := int32(binary.BigEndian.Uint32(body[:4]))
		return WatchRecordingPacket{ID: id}, nil

	case TagSeekTo:
		if len(body) < 4 {
			return nil, fmt.Errorf("protocol: truncated SeekTo time")
		}
		t := int32(binary.BigEndian.Uint32(body[:4]))
		return SeekToPacket{TimeSeconds: t}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown tag %d", tag)
	}
}

func decodeControlPayload(body []byte) (ControlPayload, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("protocol: truncated control payload tag")
	}
	ctag := body[0]
	rest := body[1:]

	switch ctag {
	case controlTagMouseMove:
		if len(rest) < 8 {
			return nil, fmt.Errorf("protocol: truncated MouseMove")
		}
		return MouseMove{
			X: binary.BigEndian.Uint32(rest[0:4]),
			Y: binary.BigEndian.Uint32(rest[4:8]),
		}, nil

	case controlTagMouseClick:
		if len(rest) < 10 {
			return nil, fmt.Errorf("protocol: truncated MouseClick")
		}
		return MouseClick{
			X:       binary.BigEndian.Uint32(rest[0:4]),
			Y:       binary.BigEndian.Uint32(rest[4:8]),
			Pressed: rest[8] != 0,
			Button:  rest[9],
		}, nil

	case controlTagKeyboard:
		if len(rest) < 3 {
			return nil, fmt.Errorf("protocol: truncated Keyboard")
		}
		return Keyboard{
			Pressed: rest[0] != 0,
			Key:     binary.BigEndian.Uint16(rest[1:3]),
		}, nil

	case controlTagScroll:
		if len(rest) < 4 {
			return nil, fmt.Errorf("protocol: truncated Scroll")
		}
		return Scroll{Delta: int32(binary.BigEndian.Uint32(rest[0:4]))}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown control payload tag %d", ctag)
	}
}
