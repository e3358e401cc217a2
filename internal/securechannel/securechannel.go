// Package securechannel implements the RSA-bootstrapped, AES-256-GCM
// framed transport that carries every protocol.Packet between peers: an
// RSA-2048 handshake wraps a fresh symmetric key per connection, after
// which every message is sealed with a per-direction nonce counter so a
// server's and a client's independent send sequences can never collide for
// the same key.
package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/transport/framed"
)

const (
	rsaKeyBits  = 2048
	aesKeyBytes = 32 // AES-256
	nonceBytes  = 12
	// maxCiphertextSize bounds a single frame's declared ciphertext length;
	// generous enough for a full-resolution NAL unit, small enough to stop
	// a corrupt peer from asking us to allocate gigabytes.
	maxCiphertextSize = 16 * 1024 * 1024
	// maxHandshakeSize bounds the RSA public key / wrapped AES key frames.
	maxHandshakeSize = 16 * 1024
)

// shared holds the state every clone of a Channel must see identically:
// the nonce counter, the cipher, and the write-serialization lock. Cloning
// a Channel shares this struct rather than copying it.
type shared struct {
	writeMu      sync.Mutex
	nonceCounter atomic.Uint64
	gcm          cipher.AEAD
}

// Channel is one endpoint's view of a secure, framed, clonable connection.
// Producer goroutines (e.g. the screen streamer) and the connection's
// reader goroutine each hold a clone; all clones share the same
// underlying net.Conn, nonce counter, and cipher, so concurrent sends
// across clones never interleave bytes or reuse a (key, nonce) pair.
type Channel struct {
	conn     net.Conn
	shared   *shared
	isServer bool
}

// NewServer performs the server side of the handshake: generate an
// RSA-2048 keypair, send the public key, then receive and unwrap the
// client's AES-256 key.
func NewServer(conn net.Conn) (*Channel, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("securechannel: generate RSA key: %w", err)
	}

	pubDER := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	if err := framed.WriteLengthPrefixed(conn, pubDER); err != nil {
		return nil, fmt.Errorf("securechannel: send RSA public key: %w", err)
	}

	wrapped, err := framed.ReadLengthPrefixed(conn, maxHandshakeSize)
	if err != nil {
		return nil, fmt.Errorf("securechannel: receive wrapped AES key: %w", err)
	}
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("securechannel: unwrap AES key: %w", err)
	}
	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	return newChannel(conn, gcm, true), nil
}

// NewClient performs the client side of the handshake: receive the
// server's RSA public key, generate a fresh AES-256 key, and send it back
// wrapped under that public key.
func NewClient(conn net.Conn) (*Channel, error) {
	pubDER, err := framed.ReadLengthPrefixed(conn, maxHandshakeSize)
	if err != nil {
		return nil, fmt.Errorf("securechannel: receive RSA public key: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(pubDER)
	if err != nil {
		return nil, fmt.Errorf("securechannel: parse RSA public key: %w", err)
	}

	aesKey := make([]byte, aesKeyBytes)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("securechannel: generate AES key: %w", err)
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, aesKey)
	if err != nil {
		return nil, fmt.Errorf("securechannel: wrap AES key: %w", err)
	}
	if err := framed.WriteLengthPrefixed(conn, wrapped); err != nil {
		return nil, fmt.Errorf("securechannel: send wrapped AES key: %w", err)
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	return newChannel(conn, gcm, false), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("securechannel: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("securechannel: gcm: %w", err)
	}
	return gcm, nil
}

func newChannel(conn net.Conn, gcm cipher.AEAD, isServer bool) *Channel {
	s := &shared{gcm: gcm}
	s.nonceCounter.Store(1)
	return &Channel{conn: conn, shared: s, isServer: isServer}
}

// Clone returns a new handle to the same secure channel: same
// connection, same nonce counter, same cipher, same write lock. The
// underlying socket is full-duplex, so a clone used purely for sending
// (e.g. by a producer goroutine) and the original used purely for
// receiving (the connection's reader goroutine) operate safely in
// parallel. Concurrent Send calls on different clones are serialized by
// the shared write lock so frames are never interleaved.
//
// Unlike the Rust original, which duplicates the OS socket descriptor so
// each clone owns an independent handle, Go's net.Conn is already safe to
// share across goroutines for this purpose — the write lock, not a
// duplicated descriptor, is what provides frame atomicity here.
func (c *Channel) Clone() *Channel {
	return &Channel{conn: c.conn, shared: c.shared, isServer: c.isServer}
}

// nextNonce returns the next 12-byte GCM nonce: a 4-byte prefix (all
// 0x00 for the server, all 0x01 for the client) that keeps the server's
// and client's nonce spaces disjoint, followed by the 8-byte big-endian
// value of an atomic counter shared by every clone of this channel.
func (c *Channel) nextNonce() [nonceBytes]byte {
	n := c.shared.nonceCounter.Add(1) - 1

	var nonce [nonceBytes]byte
	if !c.isServer {
		for i := 0; i < 4; i++ {
			nonce[i] = 0x01
		}
	}
	binary.BigEndian.PutUint64(nonce[4:], n)
	return nonce
}

// Send encodes and seals packet p, then writes the frame
// (4-byte length ∥ 12-byte nonce ∥ ciphertext) as a single write while
// holding the channel's write lock, so concurrent Sends from different
// clones cannot interleave.
func (c *Channel) Send(p protocol.Packet) error {
	return c.sendPlaintext(func() ([]byte, error) { return protocol.Encode(p) })
}

// SendResult is like Send but for the handshake-style Result message,
// which lives outside Packet's tag space.
func (c *Channel) SendResult(r protocol.Result) error {
	return c.sendPlaintext(func() ([]byte, error) { return protocol.EncodeResult(r), nil })
}

func (c *Channel) sendPlaintext(encode func() ([]byte, error)) error {
	plaintext, err := encode()
	if err != nil {
		return fmt.Errorf("securechannel: encode: %w", err)
	}

	nonce := c.nextNonce()
	ciphertext := c.shared.gcm.Seal(nil, nonce[:], plaintext, nil)

	frame := make([]byte, 4+nonceBytes+len(ciphertext))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(ciphertext)))
	copy(frame[4:4+nonceBytes], nonce[:])
	copy(frame[4+nonceBytes:], ciphertext)

	c.shared.writeMu.Lock()
	defer c.shared.writeMu.Unlock()
	if err := framed.WriteExact(c.conn, frame); err != nil {
		return fmt.Errorf("securechannel: write frame: %w", err)
	}
	return nil
}

// Receive reads and decrypts the next frame and decodes it as a
// protocol.Packet. Decryption failure, a truncated read, or a parse
// failure is fatal to the channel: the caller should tear down the
// connection as though a SessionExit had arrived.
func (c *Channel) Receive() (protocol.Packet, error) {
	plaintext, err := c.receivePlaintext()
	if err != nil {
		return nil, err
	}
	pkt, err := protocol.Decode(plaintext)
	if err != nil {
		return nil, fmt.Errorf("securechannel: decode packet: %w", err)
	}
	return pkt, nil
}

// ReceiveResult reads and decrypts the next frame as a Result message.
func (c *Channel) ReceiveResult() (protocol.Result, error) {
	plaintext, err := c.receivePlaintext()
	if err != nil {
		return protocol.Result{}, err
	}
	res, err := protocol.DecodeResult(plaintext)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("securechannel: decode result: %w", err)
	}
	return res, nil
}

func (c *Channel) receivePlaintext() ([]byte, error) {
	lenBuf, err := framed.ReadExact(c.conn, 4)
	if err != nil {
		return nil, fmt.Errorf("securechannel: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxCiphertextSize {
		return nil, fmt.Errorf("securechannel: frame length %d exceeds maximum", n)
	}

	nonce, err := framed.ReadExact(c.conn, nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("securechannel: read nonce: %w", err)
	}

	ciphertext, err := framed.ReadExact(c.conn, int(n))
	if err != nil {
		return nil, fmt.Errorf("securechannel: read ciphertext: %w", err)
	}

	plaintext, err := c.shared.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("securechannel: decrypt frame: %w", err)
	}
	return plaintext, nil
}

// Close tears down the underlying connection. Safe to call from any
// clone; closes the one shared net.Conn.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the underlying connection's remote address, used for
// rate limiting and logging.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
