package noiseconn

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/flynn/noise"
)

// maxPlaintext is the largest plaintext that fits one Noise transport message
// once the 16-byte AEAD tag is appended.
const maxPlaintext = noise.MaxMsgLen - 16

var (
	ErrFrameLength  = errors.New("invalid frame length")
	ErrNoPeerStatic = errors.New("handshake finished without remote static key")
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// SecureConn wraps an underlying stream with Noise cipher states.
// Reads and writes may happen concurrently with each other.
type SecureConn struct {
	underlying io.ReadWriteCloser

	rmu     sync.Mutex
	readCS  *noise.CipherState
	pending []byte

	wmu     sync.Mutex
	writeCS *noise.CipherState
}

// HandshakeResult is what a completed handshake learned about the remote side.
type HandshakeResult struct {
	Conn          *SecureConn
	RemoteStatic  []byte // remote Noise static public key
	RemotePayload []byte // payload the remote attached to its handshake message
}

// Read returns decrypted bytes, pulling and decrypting a new frame when the
// previous one has been fully consumed.
func (c *SecureConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.pending) == 0 {
		pt, err := c.readFrame()
		if err != nil {
			return 0, err
		}
		c.pending = pt
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *SecureConn) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.underlying, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > noise.MaxMsgLen {
		return nil, ErrFrameLength
	}

	ct := make([]byte, n)
	if _, err := io.ReadFull(c.underlying, ct); err != nil {
		return nil, err
	}
	return c.readCS.Decrypt(nil, nil, ct)
}

// Write encrypts p into one or more length-prefixed frames. A p that fits in
// one Noise message is always sent as exactly one frame.
func (c *SecureConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlaintext {
			chunk = chunk[:maxPlaintext]
		}
		ct, err := c.writeCS.Encrypt(nil, nil, chunk)
		if err != nil {
			return written, err
		}
		frame := make([]byte, 4+len(ct))
		binary.BigEndian.PutUint32(frame[:4], uint32(len(ct)))
		copy(frame[4:], ct)
		if _, err := c.underlying.Write(frame); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

func (c *SecureConn) Close() error {
	return c.underlying.Close()
}

// SetDeadline forwards to the underlying stream when it supports deadlines.
func (c *SecureConn) SetDeadline(t time.Time) error {
	if dc, ok := c.underlying.(interface{ SetDeadline(time.Time) error }); ok {
		return dc.SetDeadline(t)
	}
	return nil
}

// SetReadDeadline forwards to the underlying stream when it supports deadlines.
func (c *SecureConn) SetReadDeadline(t time.Time) error {
	if dc, ok := c.underlying.(interface{ SetReadDeadline(time.Time) error }); ok {
		return dc.SetReadDeadline(t)
	}
	return nil
}

func newHandshake(initiator bool, staticPriv, staticPub []byte) (*noise.HandshakeState, error) {
	return noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: noise.DHKey{Private: staticPriv, Public: staticPub},
	})
}

// NewSecureClient runs a Noise_XX handshake as initiator. payload is carried
// encrypted in the final handshake message.
func NewSecureClient(underlying io.ReadWriteCloser, staticPriv, staticPub, payload []byte) (*HandshakeResult, error) {
	hs, err := newHandshake(true, staticPriv, staticPub)
	if err != nil {
		return nil, err
	}

	// -> e
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(underlying, msg); err != nil {
		return nil, fmt.Errorf("write e: %w", err)
	}

	// <- e, ee, s, es
	in, err := readHandshakeMsg(underlying)
	if err != nil {
		return nil, fmt.Errorf("read e, ee, s, es: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, in)
	if err != nil {
		return nil, err
	}

	// -> s, se
	msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(underlying, msg); err != nil {
		return nil, fmt.Errorf("write s, se: %w", err)
	}

	return finish(hs, underlying, cs2, cs1, remotePayload)
}

// NewSecureServer runs a Noise_XX handshake as responder. payload is carried
// in the responder's handshake message.
func NewSecureServer(underlying io.ReadWriteCloser, staticPriv, staticPub, payload []byte) (*HandshakeResult, error) {
	hs, err := newHandshake(false, staticPriv, staticPub)
	if err != nil {
		return nil, err
	}

	// <- e
	in, err := readHandshakeMsg(underlying)
	if err != nil {
		return nil, fmt.Errorf("read e: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, in); err != nil {
		return nil, err
	}

	// -> e, ee, s, es
	msg, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeMsg(underlying, msg); err != nil {
		return nil, fmt.Errorf("write e, ee, s, es: %w", err)
	}

	// <- s, se
	in, err = readHandshakeMsg(underlying)
	if err != nil {
		return nil, fmt.Errorf("read s, se: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, in)
	if err != nil {
		return nil, err
	}

	// cs1 carries initiator->responder traffic, so the responder reads with it.
	return finish(hs, underlying, cs1, cs2, remotePayload)
}

func finish(hs *noise.HandshakeState, underlying io.ReadWriteCloser, readCS, writeCS *noise.CipherState, remotePayload []byte) (*HandshakeResult, error) {
	if readCS == nil || writeCS == nil {
		return nil, errors.New("handshake incomplete")
	}
	remote := hs.PeerStatic()
	if len(remote) == 0 {
		return nil, ErrNoPeerStatic
	}
	return &HandshakeResult{
		Conn: &SecureConn{
			underlying: underlying,
			readCS:     readCS,
			writeCS:    writeCS,
		},
		RemoteStatic:  append([]byte(nil), remote...),
		RemotePayload: remotePayload,
	}, nil
}
