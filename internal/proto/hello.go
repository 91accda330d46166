package proto

// Hello travels inside the Noise handshake payload. It binds a display name,
// an advertised listen address and a protocol version to the Noise static key.
type Hello struct {
	Name     string `json:"name"`
	Listen   string `json:"listen"`
	Protocol string `json:"protocol"`
}
