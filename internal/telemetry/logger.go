package telemetry

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the minimal logging surface components depend on. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// LogConfig controls where process logs go. An empty File logs to stdout only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a *log.Logger writing to stdout and, when cfg.File is set,
// to a size-rotated file as well. The returned closer releases the file.
func NewLogger(prefix string, cfg LogConfig) (*log.Logger, io.Closer, error) {
	return newLogger(os.Stdout, prefix, cfg)
}

func newLogger(out io.Writer, prefix string, cfg LogConfig) (*log.Logger, io.Closer, error) {
	if cfg.File == "" {
		return log.New(out, prefix, log.LstdFlags), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return log.New(io.MultiWriter(out, rot), prefix, log.LstdFlags), rot, nil
}

// Discard is a Logger that drops everything.
var Discard Logger = log.New(io.Discard, "", 0)
