package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"portrelay/internal/types"

	ini "gopkg.in/ini.v1"
)

const (
	DefaultBufferSize      = 4096
	DefaultDialTimeout     = 10 * time.Second
	DefaultUDPReplyTimeout = 5 * time.Second
)

// Default 返回带默认值的配置，LoadIni 只覆盖文件中出现的键。
func Default() *types.Config {
	return &types.Config{
		RelayConf: types.RelayConf{
			Mode:            string(types.ModeTCP),
			ListenAddr:      "0.0.0.0",
			ListenPort:      8080,
			BufferSize:      DefaultBufferSize,
			DialTimeout:     DefaultDialTimeout,
			UDPReplyTimeout: DefaultUDPReplyTimeout,
		},
		LogConf: types.LogConf{
			Level:   "info",
			Console: true,
		},
	}
}

// LoadIni 从指定的 fileName 加载配置到传入的 types.Config 结构体中。
// A missing file is not an error; env overrides are applied afterwards.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.LoadSources(ini.LoadOptions{Loose: true}, fileName)
	if err != nil {
		return err
	}

	// 使用 MapTo 自动将 .ini 文件的 section 映射到 cfg 结构体的嵌入字段
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}

	overrideFromEnv(&cfg.RelayConf.Mode, "RELAY_MODE")
	overrideFromEnv(&cfg.RelayConf.ListenAddr, "RELAY_LISTEN_ADDR")
	overrideFromEnvInt(&cfg.RelayConf.ListenPort, "RELAY_LISTEN_PORT")
	overrideFromEnv(&cfg.RelayConf.TargetAddr, "RELAY_TARGET_ADDR")
	overrideFromEnvInt(&cfg.RelayConf.TargetPort, "RELAY_TARGET_PORT")
	overrideFromEnv(&cfg.LogConf.Level, "RELAY_LOG_LEVEL")

	return nil
}

// ApplyOverrides applies command-line values; empty strings leave cfg untouched.
func ApplyOverrides(cfg *types.Config, mode, listen, target string) error {
	if mode != "" {
		cfg.RelayConf.Mode = mode
	}
	if listen != "" {
		ep, err := types.ParseEndpoint(listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.RelayConf.ListenAddr, cfg.RelayConf.ListenPort = ep.Host, ep.Port
	}
	if target != "" {
		ep, err := types.ParseEndpoint(target)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.RelayConf.TargetAddr, cfg.RelayConf.TargetPort = ep.Host, ep.Port
	}
	return nil
}

// Validate checks that the relay parameters are usable before the supervisor starts.
func Validate(cfg *types.Config) error {
	if _, err := types.ParseMode(cfg.RelayConf.Mode); err != nil {
		return fmt.Errorf("relay.mode: %w", err)
	}
	if err := cfg.RelayConf.Listen().ValidateListen(); err != nil {
		return fmt.Errorf("relay.listen_port: %w", err)
	}
	if err := cfg.RelayConf.Target().ValidateTarget(); err != nil {
		return fmt.Errorf("relay.target: %w", err)
	}
	if cfg.RelayConf.BufferSize <= 0 {
		return fmt.Errorf("relay.buffer_size: must be positive, got %d", cfg.RelayConf.BufferSize)
	}
	if cfg.RelayConf.DialTimeout < 0 || cfg.RelayConf.UDPReplyTimeout < 0 {
		return fmt.Errorf("relay: timeouts must not be negative")
	}
	switch cfg.RelayConf.ProxyProtocol {
	case "", "v1", "v2":
	default:
		return fmt.Errorf("relay.proxy_protocol: unsupported value %q (want v1 or v2)", cfg.RelayConf.ProxyProtocol)
	}
	if cfg.RelayConf.SocketBuffer < 0 {
		return fmt.Errorf("relay.socket_buffer: must not be negative")
	}
	return nil
}

// SaveIni 将内存中的 types.Config 结构体保存回指定的 fileName。
func SaveIni(cfg *types.Config, fileName string) error {
	iniFile := ini.Empty()
	if err := ini.ReflectFrom(iniFile, cfg); err != nil {
		return fmt.Errorf("failed to reflect config to ini object: %w", err)
	}
	return iniFile.SaveTo(fileName)
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
