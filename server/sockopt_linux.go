//go:build linux

package server

import (
	"golang.org/x/sys/unix"
)

func setSocketOptions(fd int) error {
	// Frames are small and latency bound
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
}
