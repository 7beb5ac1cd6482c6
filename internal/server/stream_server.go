package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"portrelay/internal/agent"
	"portrelay/internal/shared/logger"
	"portrelay/internal/types"
)

const maxAcceptDelay = time.Second

// runStream 在监听端点上循环 accept，每个连接交给一个独立的 goroutine 处理。
func (s *AppServer) runStream(ctx context.Context, listen types.Endpoint, agentCfg agent.Config) error {
	lc := listenConfig(s.cfg.RelayConf.SocketBuffer)
	listener, err := lc.Listen(ctx, "tcp", listen.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	defer listener.Close()

	// ctx 结束时关闭 listener，解除 Accept 阻塞
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	s.markReady(listener.Addr())
	logger.Info().
		Str("mode", string(types.ModeTCP)).
		Str("listen_addr", listener.Addr().String()).
		Str("target_addr", agentCfg.Target.String()).
		Msg(startupMessage(types.ModeTCP, listener.Addr(), agentCfg.Target))

	streamAgent := agent.NewStreamAgent(agentCfg)

	var tempDelay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTemporaryAcceptError(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > maxAcceptDelay {
					tempDelay = maxAcceptDelay
				}
				logger.Warn().Err(err).Dur("retry_in", tempDelay).Msg("Accept failed, retrying")
				select {
				case <-time.After(tempDelay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return fmt.Errorf("accept on %s: %w", listener.Addr(), err)
		}
		tempDelay = 0

		logger.Info().Str("client_addr", conn.RemoteAddr().String()).Msg("TCP Connection received")
		go func(c net.Conn) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Str("client_addr", c.RemoteAddr().String()).
						Msg("Panic recovered in connection handler")
					_ = c.Close()
				}
			}()
			streamAgent.HandleConnection(ctx, c)
		}(conn)
	}
}
