// Package logging wires the standard logger and the backend output log to
// rotating files in the data directory.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateConfig 日志轮转配置
type RotateConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotate is used when a field is zero.
var DefaultRotate = RotateConfig{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true}

// NewRotator returns a size-rotated log file at path.
func NewRotator(path string, cfg RotateConfig) *lumberjack.Logger {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultRotate.MaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultRotate.MaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultRotate.MaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// Setup tees the standard logger to console (stdout when nil) and a rotating
// file at path. The returned closer restores console-only logging.
func Setup(path string, console io.Writer) io.Closer {
	if console == nil {
		console = os.Stdout
	}
	rotator := NewRotator(path, DefaultRotate)
	log.SetOutput(io.MultiWriter(console, rotator))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return closerFunc(func() error {
		log.SetOutput(console)
		return rotator.Close()
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
