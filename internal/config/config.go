package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`

	DataDir   string `yaml:"data_dir"`
	ConfigDir string `yaml:"config_dir"`

	DBPath            string `yaml:"db_path"`
	PostgresDSN       string `yaml:"postgres_dsn"`
	MirrorIntervalSec int    `yaml:"mirror_interval_sec"`

	WS      WSConfig      `yaml:"ws"`
	History HistoryConfig `yaml:"history"`
}

type WSConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

func Defaults() Config {
	return Config{
		Addr:              ":8080",
		DataDir:           "./data",
		ConfigDir:         "./configs",
		DBPath:            "./data/neighborhood.sqlite",
		MirrorIntervalSec: 60,
		WS:                WSConfig{QueueSize: 32},
		History:           HistoryConfig{DefaultLimit: 50, MaxLimit: 500},
	}
}

func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("server.yaml: %w", err)
	}
	if c.MirrorIntervalSec <= 0 {
		c.MirrorIntervalSec = 60
	}
	if c.WS.QueueSize <= 0 {
		c.WS.QueueSize = 32
	}
	if c.History.DefaultLimit <= 0 {
		c.History.DefaultLimit = 50
	}
	if c.History.MaxLimit < c.History.DefaultLimit {
		c.History.MaxLimit = c.History.DefaultLimit
	}
	return c, nil
}
