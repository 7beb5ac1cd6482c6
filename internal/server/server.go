package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"portrelay/internal/agent"
	"portrelay/internal/shared/logger"
	"portrelay/internal/types"
)

// AppServer 是转发进程的顶层控制: 选择模式，持有监听 socket，
// 并在 ctx 结束时关闭它。
type AppServer struct {
	cfg *types.Config

	readyOnce sync.Once
	ready     chan struct{}
	addr      net.Addr
}

// New 创建一个新的 AppServer 实例
func New(cfg *types.Config) *AppServer {
	return &AppServer{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
}

// Run binds the listen endpoint and relays until ctx is cancelled or the
// loop hits an unrecoverable error. The listening socket is closed on every
// return path. In-flight sessions are not drained.
func (s *AppServer) Run(ctx context.Context) error {
	mode, err := types.ParseMode(s.cfg.RelayConf.Mode)
	if err != nil {
		logger.Error().Err(err).Msg("Proxy Error")
		return err
	}

	agentCfg := agent.NewConfig(s.cfg.RelayConf)
	listen := s.cfg.RelayConf.Listen()

	stop := context.AfterFunc(ctx, func() {
		logger.Info().Msg("Shutting down proxy...")
	})
	defer stop()

	switch mode {
	case types.ModeUDP:
		err = s.runDatagram(ctx, listen, agentCfg)
	default:
		err = s.runStream(ctx, listen, agentCfg)
	}
	if err != nil {
		logger.Error().Err(err).Str("mode", string(mode)).Msg("Proxy Error")
	}
	return err
}

// Ready is closed once the listening socket is bound.
func (s *AppServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. It is nil until Ready is closed.
func (s *AppServer) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.addr
	default:
		return nil
	}
}

func (s *AppServer) markReady(addr net.Addr) {
	s.readyOnce.Do(func() {
		s.addr = addr
		close(s.ready)
	})
}

func startupMessage(mode types.Mode, listen net.Addr, target types.Endpoint) string {
	label := "TCP"
	if mode == types.ModeUDP {
		label = "UDP"
	}
	return fmt.Sprintf("%s Proxy listening on %s, forwarding to %s", label, listen, target)
}
