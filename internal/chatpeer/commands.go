package chatpeer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"p2p-directory/internal/app/accounts"
	"p2p-directory/internal/client"
	"p2p-directory/internal/relay"
)

func readLines(ctx context.Context, in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}

// handleCommand runs one input line. It returns false when the user asked to
// quit.
func (a *App) handleCommand(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		a.ui.Println("quitting...")
		return false

	case "/help":
		PrintCommands(a.ui)

	case "/me":
		a.printMe()

	case "/register":
		args := strings.Fields(rest)
		if len(args) < 2 || len(args) > 3 {
			a.ui.Println("usage: /register <username> <password> [yyyy-mm-dd]")
			return true
		}
		date := now().Format(accounts.DateLayout)
		if len(args) == 3 {
			date = args[2]
		}
		a.authenticate(ctx, "register", args[0], func(rctx context.Context, c *client.Client) error {
			return c.Register(rctx, args[0], args[1], date)
		})

	case "/login":
		args := strings.Fields(rest)
		if len(args) != 2 {
			a.ui.Println("usage: /login <username> <password>")
			return true
		}
		a.authenticate(ctx, "login", args[0], func(rctx context.Context, c *client.Client) error {
			return c.Login(rctx, args[0], args[1])
		})

	case "/logout":
		a.logout(ctx)

	case "/list", "/who":
		a.list(ctx)

	case "/msg":
		to, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if to == "" || text == "" {
			a.ui.Println("usage: /msg <username> <message>")
			return true
		}
		a.send(ctx, to, text)

	default:
		a.ui.Println("unknown command")
		PrintCommands(a.ui)
	}
	return true
}

func (a *App) authenticate(ctx context.Context, verb, username string, do func(context.Context, *client.Client) error) {
	c, err := a.directory(ctx)
	if err != nil {
		a.ui.Printf("[DIR] %s: %v\n", verb, err)
		return
	}
	if u := a.username(); u != "" {
		a.ui.Printf("already logged in as %s, /logout first\n", u)
		return
	}
	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := do(rctx, c); err != nil {
		a.reportErr(verb, err)
		return
	}
	a.setUser(username)
	a.ui.Printf("[DIR] %s ok, you are %s\n", verb, formatName(username, ""))
}

func (a *App) logout(ctx context.Context) {
	u := a.username()
	if u == "" {
		a.ui.Println("not logged in")
		return
	}
	c, err := a.directory(ctx)
	if err != nil {
		a.ui.Printf("[DIR] logout: %v\n", err)
		return
	}
	if a.username() == "" {
		// the session was replaced and the new one starts logged out
		a.ui.Println("[DIR] logged out")
		return
	}
	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := c.Logout(rctx, u); err != nil {
		a.reportErr("logout", err)
		return
	}
	a.setUser("")
	a.ui.Println("[DIR] logged out")
}

func (a *App) list(ctx context.Context) {
	entries, err := a.fetchList(ctx)
	if err != nil {
		a.reportErr("list", err)
		return
	}
	if len(entries) == 0 {
		a.ui.Println("nobody else is online")
		return
	}
	a.ui.Println()
	a.ui.Println("Online:")
	a.ui.Printf("%-20s  %s\n", "USERNAME", "PEER")
	a.ui.Printf("%-20s  %s\n", "--------", "----")
	for _, e := range entries {
		// pad before coloring so escape codes don't skew the column
		a.ui.Printf("%s  %s\n", formatName(pad(e.Username, 20), ""), e.Peer.Short())
	}
	a.ui.Println()
}

func (a *App) send(ctx context.Context, to, text string) {
	c, err := a.directory(ctx)
	if err != nil {
		a.ui.Printf("[DIR] msg: %v\n", err)
		return
	}
	rctx, cancel := a.requestContext(ctx)
	defer cancel()

	res, err := c.Resolve(rctx, to)
	if err != nil {
		if errors.Is(err, client.ErrRejected) {
			a.ui.Printf("%s is not online\n", to)
			return
		}
		a.reportErr("resolve", err)
		return
	}
	if res.Peer == a.Node.ID() {
		a.ui.Println("that's you")
		return
	}
	a.remember(res.Username, res.Peer)

	if err := relay.Send(rctx, a.Node, res, text); err != nil {
		a.ui.Printf("[MSG] delivery to %s failed: %v\n", res.Username, err)
		return
	}
	a.ui.Printf("%s -> %s: %s\n", dim("["+now().Format("15:04:05")+"]"), formatName(res.Username, ""), text)
}

func (a *App) printMe() {
	user := a.username()
	if user == "" {
		user = "(not logged in)"
	}
	a.mu.Lock()
	c := a.dir
	a.mu.Unlock()
	dir := "(none)"
	if c != nil {
		dir = string(c.Directory())
	}

	a.ui.Println()
	a.ui.Println("== You ==")
	a.ui.Printf("  Name:       %s\n", a.Node.Name())
	a.ui.Printf("  Username:   %s\n", user)
	a.ui.Printf("  PeerID:     %s\n", a.Node.ID())
	a.ui.Printf("  Listen on:  %s\n", a.Node.ListenAddr())
	a.ui.Printf("  Directory:  %s\n", dir)
	a.ui.Println()
}

func (a *App) reportErr(verb string, err error) {
	if errors.Is(err, client.ErrRejected) {
		a.ui.Printf("[DIR] %s refused by the directory\n", verb)
		return
	}
	a.ui.Printf("[DIR] %s: %v\n", verb, err)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
