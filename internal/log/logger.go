package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vovakirdan/wirelobby-server/internal/config"
)

// New builds a zerolog logger from the log section of the configuration.
// Output goes to stdout (console or json) and, when a file is configured,
// to a size-rotated log file as JSON.
func New(cfg config.LogConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var stdout io.Writer = os.Stdout
	if !strings.EqualFold(cfg.Format, "json") {
		stdout = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{stdout}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	output := stdout
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &logger
}

// Nop returns a logger that discards everything. Handy for tests.
func Nop() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
