// Package logger wraps the global zerolog logger used by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"portrelay/internal/types"
)

const consoleTimeFormat = "2006-01-02 15:04:05"

// Init 根据 [log] 配置初始化全局 logger。
func Init(conf types.LogConf) error {
	level := zerolog.InfoLevel
	if conf.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(conf.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", conf.Level, err)
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	if conf.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	}
	writers := []io.Writer{out}

	if conf.File != "" {
		f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		// 文件中始终写 JSON，便于采集
		writers = append(writers, f)
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return nil
}

func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }
