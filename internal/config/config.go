// Package config provides the relay server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultAddress          = ":5000"
	defaultLogLevel         = "INFO"
	defaultHistorySize      = 200
	defaultTransferIdleSecs = 300
)

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File is the log file, if omitted logs go to stderr.
	File string

	// Level is one of ERROR, WARNING, NOTICE, INFO, DEBUG.
	Level string
}

func (l *Logging) validate() error {
	switch l.Level {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
		return nil
	}
	return fmt.Errorf("config: invalid logging level: %s", l.Level)
}

// Limits bounds server-side resource use.
type Limits struct {
	// HistorySize is the public history ring capacity.
	HistorySize int

	// TransferIdleSecs is how long an unacknowledged transfer record may
	// sit idle before it is reclaimed.
	TransferIdleSecs int
}

// TransferIdle returns the idle reclamation timeout.
func (l *Limits) TransferIdle() time.Duration {
	return time.Duration(l.TransferIdleSecs) * time.Second
}

// Config is the top-level relay server configuration.
type Config struct {
	// Address is the listen address.
	Address string

	// MetricsAddress, when set, serves Prometheus metrics over HTTP.
	MetricsAddress string

	Logging *Logging
	Limits  *Limits
}

// FixupAndValidate applies defaults and checks the configuration.
func (c *Config) FixupAndValidate() error {
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if c.Limits == nil {
		c.Limits = &Limits{}
	}
	if c.Limits.HistorySize <= 0 {
		c.Limits.HistorySize = defaultHistorySize
	}
	if c.Limits.TransferIdleSecs <= 0 {
		c.Limits.TransferIdleSecs = defaultTransferIdleSecs
	}
	return nil
}

// Load parses and validates a TOML configuration.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and validates a TOML configuration file.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Load(b)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := new(Config)
	_ = cfg.FixupAndValidate()
	return cfg
}
