package netx

import (
	"context"
	"net"
	"sync"
	"time"
)

// DefaultKeepAlive is the TCP keep-alive period used for dead-peer detection.
const DefaultKeepAlive = 15 * time.Second

type tcpNetwork struct {
	mu        sync.Mutex
	listener  net.Listener
	keepAlive time.Duration
}

func NewTCPNetwork() Network {
	return &tcpNetwork{keepAlive: DefaultKeepAlive}
}

// NewTCPNetworkKeepAlive is NewTCPNetwork with a custom keep-alive period.
func NewTCPNetworkKeepAlive(keepAlive time.Duration) Network {
	return &tcpNetwork{keepAlive: keepAlive}
}

func (t *tcpNetwork) Listen(bindAddr string) (Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lc := net.ListenConfig{KeepAlive: t.keepAlive}
	l, err := lc.Listen(context.Background(), "tcp", bindAddr)
	if err != nil {
		return "", err
	}
	t.listener = l
	return Addr(l.Addr().String()), nil
}

func (t *tcpNetwork) Accept() (Conn, error) {
	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()

	if l == nil {
		return nil, net.ErrClosed
	}
	c, err := l.Accept()
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

func (t *tcpNetwork) Dial(ctx context.Context, addr Addr) (Conn, error) {
	d := net.Dialer{KeepAlive: t.keepAlive}
	c, err := d.DialContext(ctx, "tcp", string(addr))
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c}, nil
}

func (t *tcpNetwork) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		err := t.listener.Close()
		t.listener = nil
		return err
	}
	return nil
}

type tcpConn struct {
	net.Conn
}

func (c *tcpConn) RemoteAddr() Addr {
	return Addr(c.Conn.RemoteAddr().String())
}
