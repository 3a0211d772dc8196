package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// NewLogger constructs a zerolog logger from config.
func NewLogger(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
		level = parsed
	}

	writer := logWriter(cfg)
	logger := zerolog.New(writer).Level(level)
	builder := logger.With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}

	return builder.Logger()
}

func logWriter(cfg Config) io.Writer {
	var writers []io.Writer

	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: zerolog.TimeFieldFormat,
		})
	} else {
		writers = append(writers, os.Stdout)
	}

	if cfg.File != "" {
		// Rotation handled by lumberjack; directory created best effort.
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    orDefault(cfg.MaxSizeMB, 100),
				MaxBackups: orDefault(cfg.MaxBackups, 7),
				MaxAge:     orDefault(cfg.MaxAgeDays, 30),
				Compress:   true,
			})
		}
	}

	if len(writers) == 1 {
		return writers[0]
	}
	return zerolog.MultiLevelWriter(writers...)
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
