//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

func reuseAddrControl(string, string, syscall.RawConn) error { return nil }
