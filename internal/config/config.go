// Package config handles daemon and gateway configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "grapevined"

// Config represents the daemon configuration
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Player  PlayerConfig  `koanf:"player"`
	Audio   AudioConfig   `koanf:"audio"`
	Log     LogConfig     `koanf:"log"`
	Media   MediaConfig   `koanf:"media"`
	Gateway GatewayConfig `koanf:"gateway"`
}

// ServerConfig contains control listener settings
type ServerConfig struct {
	Host string `koanf:"host"`

	// PortMin and PortMax bound the inclusive range the listener binds in
	PortMin int `koanf:"port_min"`
	PortMax int `koanf:"port_max"`

	// MaxMessageBytes caps the size of a single request line
	MaxMessageBytes int `koanf:"max_message_bytes"`
}

// PlayerConfig contains control loop settings
type PlayerConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `koanf:"sample_rate"`

	// BufferMs is the device buffer length in milliseconds (default: 100)
	BufferMs int `koanf:"buffer_ms"`
}

// LogConfig contains log file settings
type LogConfig struct {
	Level      string `koanf:"level"`
	Dir        string `koanf:"dir"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// MediaConfig toggles the OS media session
type MediaConfig struct {
	MPRIS bool `koanf:"mpris"`
}

// GatewayConfig contains HTTP gateway settings
type GatewayConfig struct {
	Listen string `koanf:"listen"`

	// DaemonAddr overrides port discovery when set
	DaemonAddr string        `koanf:"daemon_addr"`
	Timeout    time.Duration `koanf:"timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			PortMin:         6990,
			PortMax:         7000,
			MaxMessageBytes: 1 << 20,
		},
		Player: PlayerConfig{
			TickInterval: 250 * time.Millisecond,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			BufferMs:   100,
		},
		Log: LogConfig{
			Level:      "info",
			Dir:        filepath.Join(xdg.StateHome, appName, "logs"),
			MaxSizeMB:  10,
			MaxBackups: 7,
			MaxAgeDays: 28,
		},
		Media: MediaConfig{
			MPRIS: true,
		},
		Gateway: GatewayConfig{
			Listen:  "127.0.0.1:8080",
			Timeout: 3 * time.Second,
		},
	}
}

// Load reads the layered configuration. Files are applied in order of
// priority, last wins: the user config file, ./grapevined.toml, then
// explicit when non-empty. A missing explicit file is an error; the others
// are optional.
func Load(explicit string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if explicit != "" {
		if err := k.Load(file.Provider(explicit), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", explicit, err)
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Log.Dir = expandPath(cfg.Log.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func searchPaths() []string {
	paths := []string{}

	// 1. $XDG_CONFIG_HOME/grapevined/config.toml
	if path, err := xdg.SearchConfigFile(filepath.Join(appName, "config.toml")); err == nil {
		paths = append(paths, path)
	}

	// 2. ./grapevined.toml
	paths = append(paths, appName+".toml")

	return paths
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate checks the values that would otherwise fail late at startup
func (c *Config) Validate() error {
	var errs []error

	if c.Server.PortMin <= 0 || c.Server.PortMax > 65535 {
		errs = append(errs, fmt.Errorf("server port range %d-%d is out of bounds", c.Server.PortMin, c.Server.PortMax))
	}
	if c.Server.PortMin > c.Server.PortMax {
		errs = append(errs, fmt.Errorf("server.port_min %d is above server.port_max %d", c.Server.PortMin, c.Server.PortMax))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("server.max_message_bytes must be positive"))
	}
	if c.Player.TickInterval <= 0 {
		errs = append(errs, errors.New("player.tick_interval must be positive"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.BufferMs <= 0 {
		errs = append(errs, errors.New("audio.buffer_ms must be positive"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ListenAddrs returns every host:port pair in the configured range, lowest
// port first
func (s ServerConfig) ListenAddrs() []string {
	addrs := make([]string, 0, s.PortMax-s.PortMin+1)
	for port := s.PortMin; port <= s.PortMax; port++ {
		addrs = append(addrs, net.JoinHostPort(s.Host, strconv.Itoa(port)))
	}
	return addrs
}
