// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/demystify-app/demystify-api/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup applies level, formatter and output from cfg. The returned closer
// flushes the rotating file, when one is configured.
func Setup(cfg config.LoggingConfig, debug bool) (io.Closer, error) {
	level, errLevel := parseLevel(cfg.Level, debug)
	if errLevel != nil {
		return nil, errLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	file := strings.TrimSpace(cfg.File)
	if file == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	if errMkdir := os.MkdirAll(filepath.Dir(file), 0o755); errMkdir != nil {
		return nil, fmt.Errorf("create log dir: %w", errMkdir)
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

func parseLevel(raw string, debug bool) (log.Level, error) {
	if debug && strings.TrimSpace(raw) == "" {
		return log.DebugLevel, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return log.InfoLevel, nil
	}
	level, errParse := log.ParseLevel(raw)
	if errParse != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: %w", raw, errParse)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
