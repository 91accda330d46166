package chatpeer

import (
	"p2p-directory/internal/p2p"
	"p2p-directory/internal/uiutil"
)

func formatName(name, fallback string) string { return uiutil.FormatName(name, fallback) }
func dim(s string) string                     { return uiutil.Dim(s) }

func PrintBanner(p Printer, n *p2p.Node) {
	p.Println()
	p.Println(uiutil.AnsiBold + "Chat peer started." + uiutil.AnsiReset)
	p.Printf("Name:           %s\n", n.Name())
	p.Printf("ID:             %s\n", n.ID().Short())
	p.Printf("Addr:           %s\n", n.ListenAddr())
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    /register <user> <pass> [yyyy-mm-dd]  - create an account and log in")
	p.Println("    /login <user> <pass>                  - log in")
	p.Println("    /logout                               - go offline")
	p.Println("    /list                                 - show who is online")
	p.Println("    /msg <user> <message>                 - send a message")
	p.Println("    /me                                   - prints your info")
	p.Println("    /help                                 - this list")
	p.Println("    /quit                                 - exit")
}
