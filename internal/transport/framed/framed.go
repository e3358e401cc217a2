// Package framed provides the length-prefixed read/write primitives shared
// by the handshake and the secure channel. Every message on the wire in
// this protocol is preceded by its byte length; reads always consume the
// exact declared length and treat a short read as fatal to the connection.
package framed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a declared frame length exceeds the
// caller-supplied bound, guarding against a malicious or corrupt peer
// asking us to allocate an unbounded buffer.
var ErrFrameTooLarge = errors.New("framed: declared frame length exceeds maximum")

// ReadExact reads exactly n bytes from r, or returns an error. A short
// read (peer closed mid-frame) surfaces as io.ErrUnexpectedEOF via
// io.ReadFull and is fatal to the connection by contract.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("framed: short read: %w", err)
	}
	return buf, nil
}

// WriteExact writes p to w in full. net.Conn.Write already writes-or-errors
// atomically for a single call, but we loop defensively for any io.Writer.
func WriteExact(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return fmt.Errorf("framed: short write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// ReadLengthPrefixed reads a 4-byte big-endian length followed by that many
// payload bytes. maxSize bounds the declared length to avoid runaway
// allocation from a corrupt or hostile peer; 0 means no bound.
func ReadLengthPrefixed(r io.Reader, maxSize uint32) ([]byte, error) {
	lenBuf, err := ReadExact(r, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if maxSize != 0 && n > maxSize {
		return nil, ErrFrameTooLarge
	}
	return ReadExact(r, int(n))
}

// WriteLengthPrefixed writes a 4-byte big-endian length followed by payload,
// as a single Write call so the frame cannot be split by a concurrent writer
// on the same stream.
func WriteLengthPrefixed(w io.Writer, payload []byte) error {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return WriteExact(w, out)
}
