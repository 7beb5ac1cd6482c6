//go:build !unix

package server

import "net"

// socket_buffer is only honoured on unix platforms.
func listenConfig(int) net.ListenConfig {
	return net.ListenConfig{}
}

func isTemporaryAcceptError(error) bool {
	return false
}
