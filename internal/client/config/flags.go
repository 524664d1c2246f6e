package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gpstracker/internal/flagx"
)

// parseFlags overlays command-line flags on cfg.
//
//	-s string     history server base URL
//	-db string    local sqlite database path
//	-i duration   periodic save interval
//	-source name  position source: gpsd or fixed
//	-gpsd addr    gpsd host:port
//	-lat float    latitude for the fixed source
//	-lon float    longitude for the fixed source
//	-l string     log level
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-db", "-i", "-source", "-gpsd", "-lat", "-lon", "-l"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "history server base URL")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "local database path")
	fs.DurationVar(&cfg.SaveInterval, "i", cfg.SaveInterval, "periodic save interval")
	fs.StringVar(&cfg.PositionSource, "source", cfg.PositionSource, "position source")
	fs.StringVar(&cfg.GPSDAddr, "gpsd", cfg.GPSDAddr, "gpsd address")
	fs.Float64Var(&cfg.FixedLatitude, "lat", cfg.FixedLatitude, "fixed source latitude")
	fs.Float64Var(&cfg.FixedLongitude, "lon", cfg.FixedLongitude, "fixed source longitude")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
