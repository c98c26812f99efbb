// Package logging wraps logrus with the project's default formatting rules.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level  string `env:"LOGS_LEVEL"`
	Format string `env:"LOG_FORMAT"`
	Output string `env:"LOG_OUTPUT"`
	File   string `env:"LOG_FILE"`
}

// Logger wraps a logrus.Logger so callers get a stable type across the module.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from Config. Unknown levels fall back to info; unknown
// formats fall back to text.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		path := cfg.File
		if path == "" {
			path = "falprs.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			l.SetOutput(os.Stdout)
			l.WithError(err).Warn("could not open log file, falling back to stdout")
		} else {
			l.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault builds a Logger with sane stdout/text defaults.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text", Output: "stdout"})
}
