package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startUDPTarget answers each datagram with reply(payload); a nil reply means
// the target stays silent.
func startUDPTarget(t *testing.T, reply func([]byte) []byte) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	go func() {
		buf := make([]byte, 65535)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if out := reply(append([]byte(nil), buf[:n]...)); out != nil {
				_, _ = conn.WriteToUDP(out, from)
			}
		}
	}()
	return conn
}

// runRouter serves r on a fresh loopback socket and returns its address.
func runRouter(t *testing.T, r *DatagramRouter) net.Addr {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ctx, pc) }()

	t.Cleanup(func() {
		cancel()
		pc.Close()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("router did not stop")
		}
	})
	return pc.LocalAddr()
}

func udpRoundTrip(t *testing.T, relay net.Addr, payload string, wait time.Duration) (string, error) {
	t.Helper()
	c, err := net.Dial("udp", relay.String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(wait)))
	buf := make([]byte, 65535)
	n, err := c.Read(buf)
	return string(buf[:n]), err
}

func newTestRouter(t *testing.T, target net.Addr, cfg Config) *DatagramRouter {
	t.Helper()
	cfg.Target = endpointOf(t, target)
	r, err := NewDatagramRouter(cfg)
	require.NoError(t, err)
	return r
}

func TestDatagramRouter_RelaysReply(t *testing.T) {
	target := startUDPTarget(t, func(p []byte) []byte {
		if string(p) == "ping" {
			return []byte("pong")
		}
		return []byte("?")
	})
	relay := runRouter(t, newTestRouter(t, target.LocalAddr(), Config{UDPReplyTimeout: time.Second}))

	got, err := udpRoundTrip(t, relay, "ping", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
}

func TestDatagramRouter_SilentTargetDoesNotStopRouter(t *testing.T) {
	target := startUDPTarget(t, func(p []byte) []byte {
		if string(p) == "drop" {
			return nil
		}
		return append([]byte("echo:"), p...)
	})
	relay := runRouter(t, newTestRouter(t, target.LocalAddr(), Config{UDPReplyTimeout: 200 * time.Millisecond}))

	// request N never gets an answer
	_, err := udpRoundTrip(t, relay, "drop", 500*time.Millisecond)
	require.Error(t, err)

	// request N+1 is served once N's wait has expired
	got, err := udpRoundTrip(t, relay, "hello", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", got)
}

func TestDatagramRouter_ClientsGetTheirOwnReplies(t *testing.T) {
	target := startUDPTarget(t, func(p []byte) []byte { return append([]byte("re:"), p...) })
	relay := runRouter(t, newTestRouter(t, target.LocalAddr(), Config{UDPReplyTimeout: time.Second}))

	for _, msg := range []string{"alpha", "beta", "gamma"} {
		got, err := udpRoundTrip(t, relay, msg, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "re:"+msg, got)
	}
}

func TestDatagramRouter_TruncatesToBufferSize(t *testing.T) {
	received := make(chan int, 1)
	target := startUDPTarget(t, func(p []byte) []byte {
		received <- len(p)
		return p
	})
	relay := runRouter(t, newTestRouter(t, target.LocalAddr(), Config{BufferSize: 16, UDPReplyTimeout: time.Second}))

	got, err := udpRoundTrip(t, relay, "0123456789abcdef0123456789abcdef", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 16, <-received)
	assert.Equal(t, "0123456789abcdef", got)
}

func TestDatagramRouter_CancelInterruptsPendingExchange(t *testing.T) {
	arrived := make(chan struct{}, 1)
	target := startUDPTarget(t, func([]byte) []byte {
		arrived <- struct{}{}
		return nil
	})
	r := newTestRouter(t, target.LocalAddr(), Config{}) // no reply deadline

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ctx, pc) }()

	c, err := net.Dial("udp", pc.LocalAddr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("anyone?"))
	require.NoError(t, err)

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the target")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve stayed blocked after cancellation")
	}
}

func TestNewDatagramRouter_BadTarget(t *testing.T) {
	cfg := Config{}
	cfg.Target.Host = "127.0.0.1"
	cfg.Target.Port = 70000
	_, err := NewDatagramRouter(cfg)
	assert.Error(t, err)
}
