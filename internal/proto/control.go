package proto

import (
	"errors"
	"fmt"
	"strings"

	"p2p-directory/internal/netx"
)

type Command string

const (
	CmdRegister Command = "REGISTER"
	CmdLogin    Command = "LOGIN"
	CmdLogout   Command = "LOGOUT"
	CmdList     Command = "LIST"
	CmdResolve  Command = "RESOLVE"
)

const (
	ReplyOK  = "OK"
	ReplyErr = "ERR"
)

var ErrMalformed = errors.New("malformed message")

// Request is a parsed control message. Only the fields meaningful for Cmd are set.
type Request struct {
	Cmd      Command
	Username string
	Password string
	Date     string
}

// ParseRequest parses one control message. A single trailing newline (LF or
// CRLF) is ignored.
func ParseRequest(raw string) (Request, error) {
	s := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

	if s == string(CmdList) {
		return Request{Cmd: CmdList}, nil
	}

	word, payload, ok := strings.Cut(s, ":")
	if !ok {
		return Request{}, fmt.Errorf("%w: missing command separator", ErrMalformed)
	}

	switch Command(word) {
	case CmdRegister:
		// username is before the first '|', the date after the last one, so the
		// password may itself contain '|'.
		first := strings.IndexByte(payload, '|')
		last := strings.LastIndexByte(payload, '|')
		if first < 0 || first == last {
			return Request{}, fmt.Errorf("%w: REGISTER needs username|password|date", ErrMalformed)
		}
		r := Request{
			Cmd:      CmdRegister,
			Username: payload[:first],
			Password: payload[first+1 : last],
			Date:     payload[last+1:],
		}
		if r.Username == "" || r.Password == "" || r.Date == "" {
			return Request{}, fmt.Errorf("%w: empty REGISTER field", ErrMalformed)
		}
		return r, nil

	case CmdLogin:
		user, pass, ok := strings.Cut(payload, "|")
		if !ok || user == "" || pass == "" {
			return Request{}, fmt.Errorf("%w: LOGIN needs username|password", ErrMalformed)
		}
		return Request{Cmd: CmdLogin, Username: user, Password: pass}, nil

	case CmdLogout, CmdResolve:
		if payload == "" {
			return Request{}, fmt.Errorf("%w: %s needs a username", ErrMalformed, word)
		}
		return Request{Cmd: Command(word), Username: payload}, nil
	}

	return Request{}, fmt.Errorf("%w: unknown command %q", ErrMalformed, word)
}

// String renders r in wire form.
func (r Request) String() string {
	switch r.Cmd {
	case CmdRegister:
		return fmt.Sprintf("%s:%s|%s|%s", r.Cmd, r.Username, r.Password, r.Date)
	case CmdLogin:
		return fmt.Sprintf("%s:%s|%s", r.Cmd, r.Username, r.Password)
	case CmdLogout, CmdResolve:
		return fmt.Sprintf("%s:%s", r.Cmd, r.Username)
	default:
		return string(r.Cmd)
	}
}

// ListEntry is one username=peer pair of a LIST reply.
type ListEntry struct {
	Username string
	Peer     netx.PeerID
}

// FormatList renders entries as "LIST:u1=id1,u2=id2" in the given order.
func FormatList(entries []ListEntry) string {
	var b strings.Builder
	b.WriteString(string(CmdList))
	b.WriteByte(':')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Username)
		b.WriteByte('=')
		b.WriteString(string(e.Peer))
	}
	return b.String()
}

// ParseList is the inverse of FormatList.
func ParseList(s string) ([]ListEntry, error) {
	body, ok := strings.CutPrefix(s, string(CmdList)+":")
	if !ok {
		return nil, fmt.Errorf("%w: not a LIST reply", ErrMalformed)
	}
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]ListEntry, 0, len(parts))
	for _, p := range parts {
		user, id, ok := strings.Cut(p, "=")
		if !ok || user == "" || id == "" {
			return nil, fmt.Errorf("%w: bad LIST item %q", ErrMalformed, p)
		}
		out = append(out, ListEntry{Username: user, Peer: netx.PeerID(id)})
	}
	return out, nil
}

// Resolution is the RESOLVE reply: where a username can be dialed.
type Resolution struct {
	Username string
	Peer     netx.PeerID
	Addr     netx.Addr
}

// FormatResolve renders "RESOLVE:<user>=<id>@<addr>".
func FormatResolve(r Resolution) string {
	return fmt.Sprintf("%s:%s=%s@%s", CmdResolve, r.Username, r.Peer, r.Addr)
}

// ParseResolve is the inverse of FormatResolve.
func ParseResolve(s string) (Resolution, error) {
	body, ok := strings.CutPrefix(s, string(CmdResolve)+":")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: not a RESOLVE reply", ErrMalformed)
	}
	user, rest, ok := strings.Cut(body, "=")
	if !ok || user == "" {
		return Resolution{}, fmt.Errorf("%w: bad RESOLVE reply", ErrMalformed)
	}
	id, addr, ok := strings.Cut(rest, "@")
	if !ok || id == "" || addr == "" {
		return Resolution{}, fmt.Errorf("%w: bad RESOLVE reply", ErrMalformed)
	}
	return Resolution{Username: user, Peer: netx.PeerID(id), Addr: netx.Addr(addr)}, nil
}
