package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DatagramRouter relays UDP request/reply exchanges sequentially. Every
// exchange gets its own ephemeral outbound socket, so replies can never be
// delivered to the wrong client.
type DatagramRouter struct {
	config Config
	target *net.UDPAddr
	logger zerolog.Logger
}

// NewDatagramRouter 解析目标地址；解析失败属于启动错误
func NewDatagramRouter(cfg Config) (*DatagramRouter, error) {
	target, err := net.ResolveUDPAddr("udp", cfg.Target.String())
	if err != nil {
		return nil, fmt.Errorf("resolve udp target %s: %w", cfg.Target, err)
	}
	return &DatagramRouter{
		config: cfg,
		target: target,
		logger: log.With().Str("mode", "udp").Str("target_addr", target.String()).Logger(),
	}, nil
}

// Serve reads datagrams from conn until it is closed. A failed exchange is
// logged and the loop moves on to the next datagram. Serve returns nil when
// conn was closed for shutdown and the read error otherwise.
func (r *DatagramRouter) Serve(ctx context.Context, conn net.PacketConn) error {
	reqBuf := make([]byte, r.config.bufferSize())
	replyBuf := make([]byte, r.config.bufferSize())
	for {
		n, clientAddr, err := conn.ReadFrom(reqBuf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			r.logger.Error().Err(err).Msg("UDP Error")
			return fmt.Errorf("read from %s: %w", conn.LocalAddr(), err)
		}

		replied, err := r.exchange(ctx, conn, reqBuf[:n], replyBuf, clientAddr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error().Err(err).Str("client_addr", clientAddr.String()).Msg("UDP Error")
			continue
		}
		r.logger.Debug().Str("client_addr", clientAddr.String()).
			Int("bytes_in", n).Int("bytes_out", replied).Msg("Datagram relayed")
	}
}

// exchange 完成一次请求/响应往返，返回回复给客户端的字节数
func (r *DatagramRouter) exchange(ctx context.Context, conn net.PacketConn, payload, replyBuf []byte, clientAddr net.Addr) (int, error) {
	// 1. 为本次交换创建临时出站 socket
	targetConn, err := net.DialUDP("udp", nil, r.target)
	if err != nil {
		return 0, fmt.Errorf("open outbound socket: %w", err)
	}
	defer targetConn.Close()

	// 关闭时解除阻塞的 Read
	stop := context.AfterFunc(ctx, func() { _ = targetConn.Close() })
	defer stop()

	// 2. 转发请求
	if _, err := targetConn.Write(payload); err != nil {
		return 0, fmt.Errorf("send to target: %w", err)
	}

	// 3. 等待一个回复
	if r.config.UDPReplyTimeout > 0 {
		if err := targetConn.SetReadDeadline(time.Now().Add(r.config.UDPReplyTimeout)); err != nil {
			return 0, fmt.Errorf("set reply deadline: %w", err)
		}
	}
	n, err := targetConn.Read(replyBuf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, fmt.Errorf("no reply from target within %s: %w", r.config.UDPReplyTimeout, err)
		}
		return 0, fmt.Errorf("receive from target: %w", err)
	}

	// 4. 通过监听 socket 回复客户端
	if _, err := conn.WriteTo(replyBuf[:n], clientAddr); err != nil {
		return 0, fmt.Errorf("send reply to client: %w", err)
	}
	return n, nil
}
