// Package config loads the serialq YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		LogLevel string  `yaml:"log_level,omitempty"` // panic ... trace
		Server   Server  `yaml:"server"`
		Handler  Handler `yaml:"handler,omitempty"`
		Metrics  Metrics `yaml:"metrics,omitempty"`
		Client   Client  `yaml:"client,omitempty"`
	}

	Server struct {
		Host               string        `yaml:"host"`
		Port               int           `yaml:"port"`
		MaxIncomingStreams int64         `yaml:"max_incoming_streams,omitempty"`
		IdleTimeout        time.Duration `yaml:"idle_timeout,omitempty"`      // e.g. "5m"
		HandshakeTimeout   time.Duration `yaml:"handshake_timeout,omitempty"` // e.g. "10s"
	}

	// Handler configures the simulated job work.
	Handler struct {
		// Used when a job does not ask for a duration.
		Delay   time.Duration `yaml:"delay,omitempty"`
		// Longest a single job may hold the queue.
		MaxWork time.Duration `yaml:"max_work,omitempty"`
	}

	Metrics struct {
		EventsPath     string        `yaml:"events_path,omitempty"`
		SamplesPath    string        `yaml:"samples_path,omitempty"`
		SampleInterval time.Duration `yaml:"sample_interval,omitempty"` // 0 disables sampling
	}

	Client struct {
		Jobs        int           `yaml:"jobs,omitempty"`
		Concurrency int           `yaml:"concurrency,omitempty"`
		Work        time.Duration `yaml:"work,omitempty"` // per job
	}
)

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: Server{
			Host:               "localhost",
			Port:               8000,
			MaxIncomingStreams: 20000,
			IdleTimeout:        5 * time.Minute,
			HandshakeTimeout:   10 * time.Second,
		},
		Handler: Handler{
			Delay:   50 * time.Millisecond,
			MaxWork: 30 * time.Second,
		},
		Client: Client{
			Jobs:        10,
			Concurrency: 4,
			Work:        20 * time.Millisecond,
		},
	}
}

// Load reads the config at path on top of the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Server.IdleTimeout < 0 || c.Server.HandshakeTimeout < 0 {
		return errors.New("config: negative server timeout")
	}
	if c.Handler.Delay < 0 || c.Handler.MaxWork < 0 {
		return errors.New("config: negative handler delay or max work")
	}
	if c.Metrics.SampleInterval < 0 {
		return errors.New("config: negative metrics sample interval")
	}
	if c.Client.Jobs < 0 || c.Client.Concurrency < 0 {
		return errors.New("config: negative client jobs or concurrency")
	}
	return nil
}

func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return level, errors.Wrap(err, "config: log level")
	}
	return level, nil
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
