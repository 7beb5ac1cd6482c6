package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portrelay/internal/config"
	"portrelay/internal/server"
	"portrelay/internal/shared/logger"
)

func main() {
	configPath := flag.String("config", "configs/portrelay.ini", "Path to relay config file")
	mode := flag.String("mode", "", "Override relay mode: tcp or udp")
	listen := flag.String("listen", "", "Override listen endpoint, host:port")
	target := flag.String("target", "", "Override target endpoint, host:port")
	saveTo := flag.String("save-config", "", "Write the effective config to this path and exit")
	flag.Parse()

	// 1. 加载配置 (文件 -> 环境变量 -> 命令行)
	cfg := config.Default()
	if err := config.LoadIni(cfg, *configPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	if err := config.ApplyOverrides(cfg, *mode, *listen, *target); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(2)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// 2. 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if *saveTo != "" {
		if err := config.SaveIni(cfg, *saveTo); err != nil {
			logger.Fatal().Err(err).Str("path", *saveTo).Msg("Failed to save config")
		}
		logger.Info().Str("path", *saveTo).Msg("Config written")
		return
	}

	// 3. 运行转发，SIGINT/SIGTERM 取消 ctx
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg).Run(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
