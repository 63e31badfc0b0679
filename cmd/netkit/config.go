package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/netkit/netkit"
)

// Config holds the netkit command configuration.
type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Session options shared by servers and dialed sessions.
	Session netkit.Config `yaml:"session"`
}

// LoadConfig reads the configuration from the given YAML file path. Empty
// path means the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Log.Level = zerolog.InfoLevel.String()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger returns console logger writing to stderr at given level.
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
