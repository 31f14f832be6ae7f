// Package config loads on-disk TOML configuration for the server and
// client processes, with sensible defaults filled in before the file
// (if any) is decoded over them.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Config is the top-level configuration shape. Server and client
// processes each read their own section; a process that never touches
// the other's section still gets its defaults for free.
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Client    ClientConfig    `toml:"client" json:"client"`
	Dashboard DashboardConfig `toml:"dashboard" json:"dashboard"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// ServerConfig controls the RTSP-like control listener and media
// directory. DefaultFPS is loaded and saved but not applied by the
// server: a session whose SETUP carries no usable FPS header streams at
// session.DefaultFPS (25) regardless of this value.
type ServerConfig struct {
	ListenAddr    string `toml:"listen_addr" json:"listen_addr"`
	MediaDir      string `toml:"media_dir" json:"media_dir"`
	DefaultFPS    int    `toml:"default_fps" json:"default_fps"`
	ShutdownGrace int    `toml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`
}

// ClientConfig controls the control-plane dial target and the
// receive-side tuning knobs (jitter buffering, local datagram port).
type ClientConfig struct {
	ServerAddr   string `toml:"server_addr" json:"server_addr"`
	Filename     string `toml:"filename" json:"filename"`
	LocalRTPPort int    `toml:"local_rtp_port" json:"local_rtp_port"`
	FPS          int    `toml:"fps" json:"fps"`
	JitterMs     int    `toml:"jitter_ms" json:"jitter_ms"`
	CacheDir     string `toml:"cache_dir" json:"cache_dir"`
}

// DashboardConfig controls the optional stats surface. The server and
// client both run fully with Enabled=false.
type DashboardConfig struct {
	Enabled            bool   `toml:"enabled" json:"enabled"`
	ListenAddr         string `toml:"listen_addr" json:"listen_addr"`
	BroadcastInterval  int    `toml:"broadcast_interval_ms" json:"broadcast_interval_ms"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development" json:"development"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    "0.0.0.0:5540",
			MediaDir:      ".",
			DefaultFPS:    25,
			ShutdownGrace: 5,
		},
		Client: ClientConfig{
			ServerAddr:   "127.0.0.1:5540",
			LocalRTPPort: 6000,
			FPS:          25,
			JitterMs:     200,
			CacheDir:     ".",
		},
		Dashboard: DashboardConfig{
			Enabled:           false,
			ListenAddr:        "0.0.0.0:8090",
			BroadcastInterval: 1000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load reads configPath into a Config seeded with defaults. A missing
// file is not an error: defaults are returned as-is.
func Load(configPath string, logger *zap.Logger) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if logger != nil {
			logger.Info("config file not found, using defaults", zap.String("path", configPath))
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", configPath, err)
	}
	if logger != nil {
		logger.Info("config loaded", zap.String("path", configPath))
	}
	return cfg, nil
}

// Save writes cfg to configPath as TOML.
func Save(cfg *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}

// NewLogger builds a zap.Logger from LoggingConfig.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	var zapCfg zap.Config
	if l.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
