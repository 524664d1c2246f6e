// Package config loads runtime configuration for the tracking client.
//
// Sources, in increasing order of precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional YAML or JSON file selected with -c or -config.
//  3. GPSTRACKER_* environment variables.
//  4. Command-line flags (see parseFlags).
//
// Example file:
//
//	server_url: http://127.0.0.1:3000/api
//	position_source: fixed
//	fixed_latitude: 56.9496
//	fixed_longitude: 24.1052
//	save_interval: 10s
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gpstracker/internal/client/tracking"
	"github.com/dmitrijs2005/gpstracker/internal/common"
	"github.com/dmitrijs2005/gpstracker/internal/validation"
)

const (
	SourceGPSD  = "gpsd"
	SourceFixed = "fixed"
)

// Config holds runtime settings for the tracking client.
type Config struct {
	ServerURL    string `koanf:"server_url" validate:"required,url"`
	DatabasePath string `koanf:"database_path" validate:"required"`

	SaveInterval time.Duration `koanf:"save_interval" validate:"gt=0"`

	PositionSource string        `koanf:"position_source" validate:"oneof=gpsd fixed"`
	GPSDAddr       string        `koanf:"gpsd_addr" validate:"required_if=PositionSource gpsd"`
	FixedLatitude  float64       `koanf:"fixed_latitude" validate:"gte=-90,lte=90"`
	FixedLongitude float64       `koanf:"fixed_longitude" validate:"gte=-180,lte=180"`
	FixedInterval  time.Duration `koanf:"fixed_interval" validate:"gt=0"`

	HighAccuracy   bool          `koanf:"high_accuracy"`
	MaxSampleAge   time.Duration `koanf:"max_sample_age" validate:"gte=0"`
	WatchTimeout   time.Duration `koanf:"watch_timeout" validate:"gt=0"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout" validate:"gt=0"`

	HistoryLimit        int           `koanf:"history_limit" validate:"gte=1,lte=50"`
	RequestTimeout      time.Duration `koanf:"request_timeout" validate:"gt=0"`
	OnlineCheckInterval time.Duration `koanf:"online_check_interval" validate:"gt=0"`

	LogBackend string `koanf:"log_backend" validate:"oneof=slog zerolog"`
	LogLevel   string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFile    string `koanf:"log_file"`
}

// LoadDefaults populates c with defaults suitable for a local server.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:3000/api"
	c.DatabasePath = "gpstracker.db"
	c.SaveInterval = tracking.DefaultSaveInterval
	c.PositionSource = SourceGPSD
	c.GPSDAddr = "127.0.0.1:2947"
	c.FixedInterval = 5 * time.Second
	c.HighAccuracy = true
	c.MaxSampleAge = 10 * time.Second
	c.WatchTimeout = 10 * time.Second
	c.RefreshTimeout = 10 * time.Second
	c.HistoryLimit = common.MaxHistoryLimit
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.LogBackend = "zerolog"
	c.LogLevel = "warn"
}

func (c *Config) Validate() error {
	return validation.Struct(c)
}

// LoadConfig builds a Config from os.Args and the environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds a Config from args and the process environment.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadLayers(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
