// Package auth serves the directory control protocol on one session at a time:
// REGISTER, LOGIN, LOGOUT, LIST and RESOLVE.
package auth

import (
	"context"
	"errors"

	"p2p-directory/internal/app/accounts"
	"p2p-directory/internal/app/directory"
	"p2p-directory/internal/app/names"
	"p2p-directory/internal/netx"
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/proto"
	"p2p-directory/internal/telemetry"
)

type Accounts interface {
	Register(username, password, date string) (accounts.UserRecord, error)
	Verify(username, password string) (accounts.UserRecord, error)
}

type Directory interface {
	Put(username string, peer netx.PeerID) bool
	Release(username string, peer netx.PeerID) bool
	Lookup(username string) (netx.PeerID, bool)
	UsernameOf(peer netx.PeerID) (string, bool)
	Snapshot(exclude string) []directory.Entry
}

// AddrBook resolves a connected peer to a dialable address.
type AddrBook interface {
	PeerDialAddr(id netx.PeerID) (netx.Addr, bool)
}

type Config struct {
	Accounts  Accounts
	Directory Directory
	Addrs     AddrBook // nil disables RESOLVE
	Logger    telemetry.Logger
	Metrics   Metrics
	Limiter   Limiter // nil disables throttling
	Debug     bool
}

type Handler struct {
	accounts Accounts
	dir      Directory
	addrs    AddrBook
	logger   telemetry.Logger
	metrics  Metrics
	limiter  Limiter
	debug    bool
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		accounts: cfg.Accounts,
		dir:      cfg.Directory,
		addrs:    cfg.Addrs,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		limiter:  cfg.Limiter,
		debug:    cfg.Debug,
	}
	if h.logger == nil {
		h.logger = telemetry.Discard
	}
	if h.metrics == nil {
		h.metrics = NoopMetrics{}
	}
	if h.limiter == nil {
		h.limiter = noLimit{}
	}
	return h
}

// ServeSession implements p2p.Handler. It answers one request per message
// until the session ends; the directory entry it may hold is removed by the
// session manager afterwards.
func (h *Handler) ServeSession(ctx context.Context, s *p2p.Session) {
	c := newConn(s.PeerID())
	c.source = sourceOf(s.RemoteAddr())
	h.logf(c, "open from %s name=%q", s.RemoteAddr(), s.Name())

	for {
		var reply string
		msg, err := s.ReadMessage()
		switch {
		case err == nil:
			reply = h.handle(c, msg)
		case errors.Is(err, proto.ErrMalformed):
			// the whole frame was consumed, so the stream is still in step
			h.metrics.IncRequest(commandMalformed, ResultErr)
			h.logf(c, "malformed frame: %v", err)
			reply = proto.ReplyErr
		case errors.Is(err, proto.ErrFrameTooLarge):
			// the payload was never read; there is no next frame boundary to find
			h.logger.Printf("[auth %s %s] dropping session in state %s: %v", c.id[:8], c.peer.Short(), c.state, err)
			return
		default:
			h.logf(c, "closed in state %s: %v", c.state, err)
			return
		}
		if err := s.WriteMessage(reply); err != nil {
			h.logf(c, "write failed: %v", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// handle runs one request through the state machine and returns the reply.
// Malformed or out-of-state requests get ERR and change nothing.
func (h *Handler) handle(c *conn, raw string) string {
	req, err := proto.ParseRequest(raw)
	if err != nil {
		h.metrics.IncRequest(commandMalformed, ResultErr)
		h.logf(c, "malformed request: %v", err)
		return proto.ReplyErr
	}

	var reply string
	switch req.Cmd {
	case proto.CmdRegister:
		reply = h.register(c, req)
	case proto.CmdLogin:
		reply = h.login(c, req)
	case proto.CmdLogout:
		reply = h.logout(c, req)
	case proto.CmdList:
		reply = h.list(c)
	case proto.CmdResolve:
		reply = h.resolve(c, req)
	default:
		reply = proto.ReplyErr
	}

	result := ResultOK
	if reply == proto.ReplyErr {
		result = ResultErr
	}
	h.metrics.IncRequest(string(req.Cmd), result)
	return reply
}

func (h *Handler) register(c *conn, req proto.Request) string {
	if c.state != Unauthenticated {
		h.logf(c, "REGISTER rejected: already %s as %q", c.state, c.username)
		return proto.ReplyErr
	}
	if !h.allow(c, req) {
		return proto.ReplyErr
	}
	rec, err := h.accounts.Register(req.Username, req.Password, req.Date)
	if err != nil {
		if errors.Is(err, accounts.ErrStorageUnavailable) {
			h.logger.Printf("[auth %s] registration of %q not persisted: %v", c.id[:8], req.Username, err)
		} else {
			h.limiter.Failed(c.sourceKey())
			h.logf(c, "REGISTER %q failed: %v", req.Username, err)
		}
		return proto.ReplyErr
	}
	h.bind(c, rec.Username)
	return proto.ReplyOK
}

func (h *Handler) login(c *conn, req proto.Request) string {
	if c.state != Unauthenticated {
		h.logf(c, "LOGIN rejected: already %s as %q", c.state, c.username)
		return proto.ReplyErr
	}
	if !h.allow(c, req) {
		return proto.ReplyErr
	}
	rec, err := h.accounts.Verify(req.Username, req.Password)
	if err != nil {
		// unknown user and wrong password look the same on the wire
		h.limiter.Failed(c.sourceKey())
		h.logf(c, "LOGIN %q failed: %v", req.Username, err)
		return proto.ReplyErr
	}
	h.bind(c, rec.Username)
	return proto.ReplyOK
}

// allow checks the failure budget of the connection's source.
func (h *Handler) allow(c *conn, req proto.Request) bool {
	if h.limiter.Allow(c.sourceKey()) {
		return true
	}
	h.logger.Printf("[auth %s] %s %q throttled: too many failures from %s", c.id[:8], req.Cmd, req.Username, c.sourceKey())
	return false
}

func (h *Handler) bind(c *conn, username string) {
	if h.dir.Put(username, c.peer) {
		h.logf(c, "%q superseded an older session", username)
	}
	c.bind(username)
	h.logf(c, "authenticated as %q", username)
}

func (h *Handler) logout(c *conn, req proto.Request) string {
	if c.state != Authenticated || !names.Equal(req.Username, c.username) {
		h.logf(c, "LOGOUT %q rejected in state %s", req.Username, c.state)
		return proto.ReplyErr
	}
	if !h.dir.Release(c.username, c.peer) {
		h.logf(c, "LOGOUT %q: binding already gone", c.username)
	}
	c.unbind()
	return proto.ReplyOK
}

func (h *Handler) list(c *conn) string {
	snap := h.dir.Snapshot(c.username)
	entries := make([]proto.ListEntry, len(snap))
	for i, e := range snap {
		entries[i] = proto.ListEntry{Username: e.Username, Peer: e.Peer}
	}
	return fitList(entries)
}

// fitList renders entries, dropping from the tail until the reply fits in a
// single frame.
func fitList(entries []proto.ListEntry) string {
	size := len(proto.CmdList) + 1
	for i, e := range entries {
		n := len(e.Username) + 1 + len(e.Peer)
		if i > 0 {
			n++
		}
		if size+n > proto.MaxFrameLen {
			return proto.FormatList(entries[:i])
		}
		size += n
	}
	return proto.FormatList(entries)
}

func (h *Handler) resolve(c *conn, req proto.Request) string {
	if h.addrs == nil {
		return proto.ReplyErr
	}
	peer, ok := h.dir.Lookup(req.Username)
	if !ok {
		return proto.ReplyErr
	}
	addr, ok := h.addrs.PeerDialAddr(peer)
	if !ok {
		h.logf(c, "RESOLVE %q: peer %s has no dialable address", req.Username, peer.Short())
		return proto.ReplyErr
	}
	user, ok := h.dir.UsernameOf(peer)
	if !ok || !names.Equal(user, req.Username) {
		// binding changed between the two reads
		return proto.ReplyErr
	}
	return proto.FormatResolve(proto.Resolution{Username: user, Peer: peer, Addr: addr})
}

func (h *Handler) logf(c *conn, format string, args ...any) {
	if !h.debug {
		return
	}
	h.logger.Printf("[auth %s %s] "+format, append([]any{c.id[:8], c.peer.Short()}, args...)...)
}
