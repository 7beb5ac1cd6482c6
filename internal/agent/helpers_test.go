package agent

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"portrelay/internal/types"
)

func endpointOf(t *testing.T, addr net.Addr) types.Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.Endpoint{Host: host, Port: port}
}

// startEchoServer echoes every byte back until the peer closes.
func startEchoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(c)
		}
	}()
	return ln
}

// startCapturingServer hands every accepted connection to the test, which
// owns closing it.
func startCapturingServer(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	conns := make(chan net.Conn, 8)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()
	return ln, conns
}

// unusedTCPEndpoint returns a loopback endpoint with nothing listening on it.
func unusedTCPEndpoint(t *testing.T) types.Endpoint {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	ep := endpointOf(t, ln.Addr())
	require.NoError(t, ln.Close())
	return ep
}

// serveAgent runs ag behind a loopback listener and returns the address clients dial.
func serveAgent(t *testing.T, ag Agent) net.Addr {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		ln.Close()
	})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go ag.HandleConnection(ctx, c)
		}
	}()
	return ln.Addr()
}
