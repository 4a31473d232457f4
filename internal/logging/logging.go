// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/altkeys/grapevined/internal/config"
)

// Component keys used across the daemon
const (
	ComponentIPC     = "ipc"
	ComponentPlayer  = "player"
	ComponentQueue   = "queue"
	ComponentAudio   = "audio"
	ComponentMedia   = "media"
	ComponentGateway = "gateway"
)

// New creates a logger writing to a rotating file named name.log under
// cfg.Dir. With verbose set the level is forced to debug and records are
// also written to stderr. The returned closer releases the log file.
func New(cfg config.LogConfig, name string, verbose bool) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
	}

	var out io.Writer = rotator
	if verbose {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		out = zerolog.MultiLevelWriter(rotator, console)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, rotator, nil
}

// ParseLevel maps a config level name to a zerolog level. An empty name
// means info.
func ParseLevel(name string) (zerolog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Component returns a child logger tagged with the component name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
