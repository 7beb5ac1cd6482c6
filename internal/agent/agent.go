package agent

import (
	"context"
	"net"
	"time"

	"portrelay/internal/types"
)

// DefaultBufferSize is the per-read transfer buffer for both modes.
const DefaultBufferSize = 4096

// Agent 是所有流式代理类型的通用接口
type Agent interface {
	// HandleConnection 处理一个入站连接，并负责关闭它
	HandleConnection(ctx context.Context, inboundConn net.Conn)
}

// Config 是 Agent 和 DatagramRouter 共用的转发配置
type Config struct {
	Target          types.Endpoint
	BufferSize      int
	DialTimeout     time.Duration
	UDPReplyTimeout time.Duration
	ProxyProtocol   string
}

// NewConfig 从 [relay] 段构造转发配置
func NewConfig(conf types.RelayConf) Config {
	return Config{
		Target:          conf.Target(),
		BufferSize:      conf.BufferSize,
		DialTimeout:     conf.DialTimeout,
		UDPReplyTimeout: conf.UDPReplyTimeout,
		ProxyProtocol:   conf.ProxyProtocol,
	}
}

func (c Config) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}
