package noiseconn

import (
	"bytes"
	"crypto/rand"
	"io"
	"net"
	"testing"

	"github.com/flynn/noise"
)

func genKey(t *testing.T) noise.DHKey {
	t.Helper()
	k, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return k
}

func handshakePair(t *testing.T) (client, server *HandshakeResult, ck, sk noise.DHKey) {
	t.Helper()
	ck, sk = genKey(t), genKey(t)
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	type res struct {
		hr  *HandshakeResult
		err error
	}
	ch := make(chan res, 1)
	go func() {
		hr, err := NewSecureServer(b, sk.Private, sk.Public, []byte("server-hello"))
		ch <- res{hr, err}
	}()

	c, err := NewSecureClient(a, ck.Private, ck.Public, []byte("client-hello"))
	if err != nil {
		t.Fatalf("NewSecureClient: %v", err)
	}
	r := <-ch
	if r.err != nil {
		t.Fatalf("NewSecureServer: %v", r.err)
	}
	return c, r.hr, ck, sk
}

func TestHandshakeExchangesStaticKeysAndPayloads(t *testing.T) {
	c, s, ck, sk := handshakePair(t)

	if !bytes.Equal(c.RemoteStatic, sk.Public) {
		t.Fatalf("client saw wrong server static key")
	}
	if !bytes.Equal(s.RemoteStatic, ck.Public) {
		t.Fatalf("server saw wrong client static key")
	}
	if string(c.RemotePayload) != "server-hello" {
		t.Fatalf("client payload = %q", c.RemotePayload)
	}
	if string(s.RemotePayload) != "client-hello" {
		t.Fatalf("server payload = %q", s.RemotePayload)
	}
}

func TestSecureConnRoundTrip(t *testing.T) {
	c, s, _, _ := handshakePair(t)

	go func() {
		_, _ = c.Conn.Write([]byte("LIST"))
	}()
	buf := make([]byte, 16)
	n, err := s.Conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "LIST" {
		t.Fatalf("got %q", buf[:n])
	}

	go func() {
		_, _ = s.Conn.Write([]byte("LIST:"))
	}()
	n, err = c.Conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "LIST:" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestSecureConnLargeWriteIsChunkedAndReassembled(t *testing.T) {
	c, s, _, _ := handshakePair(t)

	payload := bytes.Repeat([]byte("abcdefgh"), 3*maxPlaintext/8+5)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Conn.Write(payload)
		errCh <- err
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(s.Conn, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch after reassembly")
	}
}

func TestSmallReadBufferKeepsRemainder(t *testing.T) {
	c, s, _, _ := handshakePair(t)

	go func() { _, _ = c.Conn.Write([]byte("hello world")) }()

	var out []byte
	buf := make([]byte, 3)
	for len(out) < len("hello world") {
		n, err := s.Conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		out = append(out, buf[:n]...)
	}
	if string(out) != "hello world" {
		t.Fatalf("got %q", out)
	}
}
