package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	ListenAddress string `yaml:"listen_address"`
}

type Clustering struct {
	RadiusMeters int           `yaml:"radius_meters"`
	Window       time.Duration `yaml:"window"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type Stream struct {
	BufferSize int           `yaml:"buffer_size"`
	KeepAlive  time.Duration `yaml:"keep_alive"`
}

type Sweep struct {
	Schedule string `yaml:"schedule"`
}

// Config holds the policy knobs. Radius/window/buffer/keep-alive are tunables,
// not algorithmic invariants; nothing outside this package hardcodes them.
type Config struct {
	Server     Server     `yaml:"server"`
	Clustering Clustering `yaml:"clustering"`
	Stream     Stream     `yaml:"stream"`
	Sweep      Sweep      `yaml:"sweep"`
}

// Default returns the built-in policy values.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a YAML config file. Unset fields fall back to defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Clustering.RadiusMeters == 0 {
		c.Clustering.RadiusMeters = 100
	}
	if c.Clustering.Window == 0 {
		c.Clustering.Window = 30 * time.Minute
	}
	if c.Clustering.MaxRetries == 0 {
		c.Clustering.MaxRetries = 3
	}
	if c.Clustering.RetryBackoff == 0 {
		c.Clustering.RetryBackoff = 50 * time.Millisecond
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = 64
	}
	if c.Stream.KeepAlive == 0 {
		c.Stream.KeepAlive = 30 * time.Second
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "*/5 * * * *"
	}
}
