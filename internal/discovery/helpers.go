package discovery

import (
	"net"
	"strings"
)

// advertisedListen keeps a concrete host but reduces a wildcard bind to
// ":port", which the receiver completes with the sender's IP.
func advertisedListen(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return listenAddr
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		return ":" + port
	}
	return listenAddr
}

func normalizeListenFromPong(sender *net.UDPAddr, listen string) string {
	// if listen is ":port", join with sender IP
	if strings.HasPrefix(listen, ":") && sender != nil && sender.IP != nil {
		return net.JoinHostPort(sender.IP.String(), strings.TrimPrefix(listen, ":"))
	}
	return listen
}
