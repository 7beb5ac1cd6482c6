package server

import (
	"context"
	"fmt"

	"portrelay/internal/agent"
	"portrelay/internal/shared/logger"
	"portrelay/internal/types"
)

// runDatagram 绑定 UDP 监听 socket 并交给 DatagramRouter 顺序处理。
func (s *AppServer) runDatagram(ctx context.Context, listen types.Endpoint, agentCfg agent.Config) error {
	router, err := agent.NewDatagramRouter(agentCfg)
	if err != nil {
		return err
	}

	lc := listenConfig(s.cfg.RelayConf.SocketBuffer)
	conn, err := lc.ListenPacket(ctx, "udp", listen.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("bind %s: %w", listen, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.markReady(conn.LocalAddr())
	logger.Info().
		Str("mode", string(types.ModeUDP)).
		Str("listen_addr", conn.LocalAddr().String()).
		Str("target_addr", agentCfg.Target.String()).
		Msg(startupMessage(types.ModeUDP, conn.LocalAddr(), agentCfg.Target))

	return router.Serve(ctx, conn)
}
