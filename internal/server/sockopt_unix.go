//go:build unix

package server

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenConfig sizes the kernel send/receive buffers of the listening socket
// when socketBuffer is positive.
func listenConfig(socketBuffer int) net.ListenConfig {
	if socketBuffer <= 0 {
		return net.ListenConfig{}
	}
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBuffer); opErr != nil {
					return
				}
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBuffer)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
}

// isTemporaryAcceptError reports accept failures that clear up on their own
// (fd exhaustion, aborted handshakes).
func isTemporaryAcceptError(err error) bool {
	return errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM) ||
		errors.Is(err, unix.ECONNABORTED)
}
