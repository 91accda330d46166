package netx

import (
	"context"
	"io"
	"time"
)

// PeerID is the transport-issued identity of a remote peer: the lowercase hex
// encoding of its Noise static public key.
type PeerID string

type Addr string

// Short returns the first 8 characters of the id, for log lines.
func (id PeerID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() Addr
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
}

type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(ctx context.Context, addr Addr) (Conn, error)
	Close() error
}
