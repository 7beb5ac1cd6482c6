package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Mode 选择转发模式: tcp 为流式转发，udp 为数据报转发。
type Mode string

const (
	ModeTCP Mode = "tcp"
	ModeUDP Mode = "udp"
)

// ParseMode accepts "tcp" or "udp" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTCP:
		return ModeTCP, nil
	case ModeUDP:
		return ModeUDP, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want tcp or udp)", s)
	}
}

// Endpoint is an address/port pair. An empty Host means all interfaces.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host:port". The host may be empty (":8080").
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint %q: %w", s, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ValidateListen allows port 0 so the OS can pick an ephemeral port.
func (e Endpoint) ValidateListen() error {
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", e.Port)
	}
	return nil
}

func (e Endpoint) ValidateTarget() error {
	if e.Host == "" {
		return fmt.Errorf("target address is empty")
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("target port %d out of range 1-65535", e.Port)
	}
	return nil
}

// RelayConf 对应 ini 文件中的 [relay] 段
type RelayConf struct {
	Mode            string        `ini:"mode"`
	ListenAddr      string        `ini:"listen_addr"`
	ListenPort      int           `ini:"listen_port"`
	TargetAddr      string        `ini:"target_addr"`
	TargetPort      int           `ini:"target_port"`
	BufferSize      int           `ini:"buffer_size"`
	DialTimeout     time.Duration `ini:"dial_timeout"`
	UDPReplyTimeout time.Duration `ini:"udp_reply_timeout"`
	// ProxyProtocol is "", "v1" or "v2".
	ProxyProtocol string `ini:"proxy_protocol"`
	SocketBuffer  int    `ini:"socket_buffer"`
}

func (c RelayConf) Listen() Endpoint {
	return Endpoint{Host: c.ListenAddr, Port: c.ListenPort}
}

func (c RelayConf) Target() Endpoint {
	return Endpoint{Host: c.TargetAddr, Port: c.TargetPort}
}

// LogConf 对应 [log] 段
type LogConf struct {
	Level   string `ini:"level"`
	Console bool   `ini:"console"`
	File    string `ini:"file"`
}

// Config 是整个程序的统一配置结构体
type Config struct {
	RelayConf `ini:"relay"`
	LogConf   `ini:"log"`
}
