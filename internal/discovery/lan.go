package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"p2p-directory/internal/netx"
)

// LANConfig controls LAN discovery behavior.
type LANConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

const (
	DefaultLANPort    = 42042
	DefaultLANTimeout = 1 * time.Second
)

// DefaultLANConfig returns the default settings for LAN discovery.
func DefaultLANConfig() LANConfig {
	return LANConfig{
		Port:    DefaultLANPort,
		Timeout: DefaultLANTimeout,
	}
}

// lanMessage is the discovery message format.
type lanMessage struct {
	Type     string `json:"type"`             // "ping" or "pong"
	Protocol string `json:"protocol"`         // only matching nodes answer
	Name     string `json:"name,omitempty"`   // display name
	Listen   string `json:"listen,omitempty"` // TCP listen address, e.g. ":3001" or "192.168.1.10:3001"
	ID       string `json:"id,omitempty"`     // Noise static key of the announcer
}

// Self is what a responder announces about its node.
type Self struct {
	Name     string
	Listen   netx.Addr
	ID       netx.PeerID
	Protocol string
}

// Announcement is one pong received during discovery.
type Announcement struct {
	Name string
	Addr netx.Addr // dialable; ":port" already joined with the sender's IP
	ID   netx.PeerID
}

// StartLANResponder listens for LAN discovery pings and replies with a pong
// describing self. It runs until ctx is cancelled.
func StartLANResponder(ctx context.Context, cfg LANConfig, self Self) error {
	lc := net.ListenConfig{Control: reuseAddrControl}

	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("lan responder listen: %w", err)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("lan responder: not a UDPConn")
	}

	resp, err := json.Marshal(lanMessage{
		Type:     "pong",
		Protocol: self.Protocol,
		Name:     self.Name,
		Listen:   advertisedListen(string(self.Listen)),
		ID:       string(self.ID),
	})
	if err != nil {
		udpConn.Close()
		return err
	}

	go func() {
		defer udpConn.Close()

		buf := make([]byte, 1024)

		for {
			if ctx.Err() != nil {
				return
			}

			_ = udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

			n, addr, err := udpConn.ReadFromUDP(buf)
			if err != nil {
				continue
			}

			var msg lanMessage
			if err := json.Unmarshal(buf[:n], &msg); err != nil {
				continue
			}
			if msg.Type != "ping" || msg.Protocol != self.Protocol {
				continue
			}
			_, _ = udpConn.WriteToUDP(resp, addr)
		}
	}()

	return nil
}

// DiscoverLAN broadcasts a ping on the LAN and returns the nodes speaking
// protocol that answer within cfg.Timeout. It does not connect to them.
func DiscoverLAN(ctx context.Context, cfg LANConfig, protocol string) ([]Announcement, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("lan discover listen: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(lanMessage{Type: "ping", Protocol: protocol})
	if err != nil {
		return nil, err
	}

	targets := interfaceBroadcastAddrs(cfg.Port)
	if len(targets) == 0 {
		// fall back to limited broadcast
		targets = append(targets, &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.Port})
	}
	for _, dst := range targets {
		_, err = conn.WriteToUDP(data, dst)
	}
	if err != nil && !errors.Is(err, syscall.EADDRNOTAVAIL) {
		return nil, fmt.Errorf("lan discover broadcast: %w", err)
	}

	// a responder on this host may not hear the broadcast
	_, _ = conn.WriteToUDP(data, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Port})

	deadline := time.Now().Add(cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("lan discover set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	seen := make(map[netx.PeerID]struct{})
	out := make([]Announcement, 0, 4)
	buf := make([]byte, 1024)

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}

		var msg lanMessage
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			continue
		}
		if msg.Type != "pong" || msg.Protocol != protocol || msg.ID == "" {
			continue
		}
		full := normalizeListenFromPong(from, msg.Listen)
		if full == "" {
			continue
		}
		id := netx.PeerID(msg.ID)
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Announcement{Name: msg.Name, Addr: netx.Addr(full), ID: id})
	}

	return out, ctx.Err()
}

func interfaceBroadcastAddrs(port int) []*net.UDPAddr {
	out := make([]*net.UDPAddr, 0, 8)

	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}

	for _, it := range ifaces {
		if it.Flags&net.FlagUp == 0 || it.Flags&net.FlagPointToPoint != 0 {
			continue
		}

		addrs, err := it.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || len(ipnet.Mask) != 4 {
				continue
			}
			out = append(out, &net.UDPAddr{IP: broadcastOf(ip4, ipnet.Mask), Port: port})
		}
	}
	return out
}

// broadcastOf computes ip | ^mask.
func broadcastOf(ip4 net.IP, mask net.IPMask) net.IP {
	return net.IPv4(
		ip4[0]|^mask[0],
		ip4[1]|^mask[1],
		ip4[2]|^mask[2],
		ip4[3]|^mask[3],
	)
}
