// Package client speaks the directory control protocol over a p2p session.
package client

import (
	"context"
	"errors"
	"fmt"

	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/proto"
)

// ErrRejected means the directory answered ERR.
var ErrRejected = errors.New("rejected by directory")

type Client struct {
	s *p2p.Session
}

// Dial opens a session to the directory at addr. expect pins its identity
// when non-empty.
func Dial(ctx context.Context, node *p2p.Node, addr netx.Addr, expect netx.PeerID) (*Client, error) {
	s, err := node.Dial(ctx, addr, expect)
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

func New(s *p2p.Session) *Client { return &Client{s: s} }

// Directory returns the identity of the directory node.
func (c *Client) Directory() netx.PeerID { return c.s.PeerID() }

func (c *Client) Close() error { return c.s.Close() }

// Done is closed once the directory session has ended.
func (c *Client) Done() <-chan struct{} { return c.s.Done() }

func (c *Client) Register(ctx context.Context, username, password, date string) error {
	return c.expectOK(ctx, proto.Request{Cmd: proto.CmdRegister, Username: username, Password: password, Date: date})
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.expectOK(ctx, proto.Request{Cmd: proto.CmdLogin, Username: username, Password: password})
}

// Logout waits for the reply, but the server has already dropped the binding
// by the time it writes one; closing the session has the same effect.
func (c *Client) Logout(ctx context.Context, username string) error {
	return c.expectOK(ctx, proto.Request{Cmd: proto.CmdLogout, Username: username})
}

func (c *Client) List(ctx context.Context) ([]proto.ListEntry, error) {
	reply, err := c.s.RoundTrip(ctx, proto.Request{Cmd: proto.CmdList}.String())
	if err != nil {
		return nil, err
	}
	return proto.ParseList(reply)
}

func (c *Client) Resolve(ctx context.Context, username string) (proto.Resolution, error) {
	reply, err := c.s.RoundTrip(ctx, proto.Request{Cmd: proto.CmdResolve, Username: username}.String())
	if err != nil {
		return proto.Resolution{}, err
	}
	if reply == proto.ReplyErr {
		return proto.Resolution{}, fmt.Errorf("%w: resolve %q", ErrRejected, username)
	}
	return proto.ParseResolve(reply)
}

func (c *Client) expectOK(ctx context.Context, req proto.Request) error {
	reply, err := c.s.RoundTrip(ctx, req.String())
	if err != nil {
		return err
	}
	switch reply {
	case proto.ReplyOK:
		return nil
	case proto.ReplyErr:
		return fmt.Errorf("%w: %s", ErrRejected, req.Cmd)
	default:
		return fmt.Errorf("%w: unexpected reply %q to %s", proto.ErrMalformed, reply, req.Cmd)
	}
}
