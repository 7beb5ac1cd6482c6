package agent

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	proxyproto "github.com/pires/go-proxyproto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StreamAgent 把每个入站 TCP 连接与一个新建的目标连接配对并双向转发。
type StreamAgent struct {
	config Config
	target string
	logger zerolog.Logger
}

var _ Agent = (*StreamAgent)(nil)

func NewStreamAgent(cfg Config) *StreamAgent {
	target := cfg.Target.String()
	return &StreamAgent{
		config: cfg,
		target: target,
		logger: log.With().Str("mode", "tcp").Str("target_addr", target).Logger(),
	}
}

// HandleConnection runs one session. It always closes inboundConn, and the
// target connection if one was opened, before returning.
func (a *StreamAgent) HandleConnection(ctx context.Context, inboundConn net.Conn) {
	// 1. 生成 Trace ID 并创建带上下文的 logger
	l := a.logger.With().
		Str("trace_id", uuid.NewString()).
		Str("client_addr", inboundConn.RemoteAddr().String()).
		Logger()

	// 2. 连接目标，失败则直接关闭客户端连接
	dialer := &net.Dialer{Timeout: a.config.DialTimeout}
	outboundConn, err := dialer.DialContext(ctx, "tcp", a.target)
	if err != nil {
		l.Error().Err(err).Msg("TCP Error")
		_ = inboundConn.Close()
		return
	}

	// 3. 可选: 在任何客户端数据之前写入 PROXY protocol 头
	if version := proxyHeaderVersion(a.config.ProxyProtocol); version != 0 {
		if err := writeProxyHeader(outboundConn, inboundConn, version); err != nil {
			l.Error().Err(err).Msg("TCP Error")
			_ = inboundConn.Close()
			_ = outboundConn.Close()
			return
		}
	}

	l.Debug().Str("local_addr", outboundConn.LocalAddr().String()).Msg("Session established")

	// 4. 双向转发
	res, err := relayStreams(inboundConn, outboundConn, a.config.bufferSize())
	if err != nil {
		l.Error().Err(err).Int64("bytes_up", res.Up).Int64("bytes_down", res.Down).Msg("TCP Error")
		return
	}
	l.Debug().Int64("bytes_up", res.Up).Int64("bytes_down", res.Down).Msg("Session closed")
}

func proxyHeaderVersion(setting string) byte {
	switch setting {
	case "v1":
		return 1
	case "v2":
		return 2
	default:
		return 0
	}
}

// writeProxyHeader describes the client's original source and the relay's
// accepting address to the target.
func writeProxyHeader(w io.Writer, client net.Conn, version byte) error {
	header := proxyproto.HeaderProxyFromAddrs(version, client.RemoteAddr(), client.LocalAddr())
	if _, err := header.WriteTo(w); err != nil {
		return fmt.Errorf("write proxy protocol header: %w", err)
	}
	return nil
}
