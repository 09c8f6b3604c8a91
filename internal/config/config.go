package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Journal struct {
	TextDir   string `yaml:"textDir"`
	BadgerDir string `yaml:"badgerDir"`
	Replay    *bool  `yaml:"replay"`
}

type Config struct {
	Disks         int     `yaml:"disks"`
	MessageSize   int     `yaml:"messageSize"`
	BlockWidth    int     `yaml:"blockWidth"`
	Addresses     int     `yaml:"addresses"`
	Layout        string  `yaml:"layout"`
	Journal       Journal `yaml:"journal"`
	LogLevel      string  `yaml:"logLevel"`
	MinimumFreeGB int     `yaml:"minimumFreeGB"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Disks == 0 {
		c.Disks = 8
	}
	if c.MessageSize == 0 {
		c.MessageSize = 14
	}
	if c.BlockWidth == 0 {
		c.BlockWidth = 2
	}
	if c.Addresses == 0 {
		c.Addresses = 64
	}
	if c.Layout == "" {
		c.Layout = "mirror"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Journal.TextDir == "" {
		c.Journal.TextDir = "data/disks"
	}
	if c.Journal.BadgerDir == "" {
		c.Journal.BadgerDir = "data/journal"
	}
	if c.Journal.Replay == nil {
		replay := true
		c.Journal.Replay = &replay
	}
}

// Replay reports whether disks are rebuilt from the badger journal on start.
func (c Config) Replay() bool {
	return c.Journal.Replay != nil && *c.Journal.Replay
}

// GetConfig reads the YAML file at path and fills in defaults. A missing
// file yields the defaults.
func GetConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML config data and fills in defaults.
func Parse(data []byte) (Config, error) {
	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if config.Disks < 0 || config.MessageSize < 0 || config.BlockWidth < 0 || config.Addresses < 0 {
		return Config{}, errors.New("config: sizes must not be negative")
	}
	config.applyDefaults()
	return config, nil
}
