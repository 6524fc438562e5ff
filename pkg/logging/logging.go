// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Config controls the log level and optional rotating log file.
type Config struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
}

// New returns a logger writing JSON to cfg.File (rotated by lumberjack) or to
// stderr when no file is set. At debug level and below the output is also
// human readable: a console copy goes to stdout next to the file, or stderr
// switches to console format. No line is written twice to the terminal.
func New(cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)
	out := newOutput(cfg, level, os.Stdout, os.Stderr)
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newOutput(cfg Config, level zerolog.Level, stdout, stderr io.Writer) io.Writer {
	debug := level <= zerolog.DebugLevel
	if cfg.File == "" {
		if debug {
			return zerolog.ConsoleWriter{Out: stderr}
		}
		return stderr
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	if debug {
		return io.MultiWriter(file, zerolog.ConsoleWriter{Out: stdout})
	}
	return file
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
