// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package logging configures the process-wide slog logger for the hub
// server, with optional rotated file output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output for the server process.
type Config struct {
	LogToFile       bool   `yaml:"log_to_file"`
	Filename        string `yaml:"filename"`
	MaxSize         int    `yaml:"max_size"`    // megabytes
	MaxAge          int    `yaml:"max_age"`     // days
	MaxBackups      int    `yaml:"max_backups"`
	LogLevel        string `yaml:"log_level"`
	IncludeSrc      bool   `yaml:"include_src"`
	CompressOldLogs bool   `yaml:"compress_old_logs"`
}

// InitLogger builds a JSON slog logger from cfg and installs it as the
// default. File output, when enabled, is mirrored to stdout.
func InitLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(cfg.LogLevel),
		AddSource: cfg.IncludeSrc,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}

	var w io.Writer = os.Stdout
	if cfg.LogToFile && cfg.Filename != "" {
		logTarget := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.CompressOldLogs,
		}
		w = io.MultiWriter(os.Stdout, logTarget)
	}

	logger := slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

func levelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
