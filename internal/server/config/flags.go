package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gpstracker/internal/flagx"
)

// parseFlags overlays command-line flags on cfg.
//
//	-a string     HTTP bind address (":3000")
//	-p string     API route prefix ("/api")
//	-s string     storage backend: postgres, dynamodb, memory
//	-d string     PostgreSQL DSN
//	-t string     DynamoDB table
//	-b string     S3 archive bucket
//	-e string     S3 base endpoint
//	-static dir   serve a front-end build from dir
//	-l string     log level
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-p", "-s", "-d", "-t", "-b", "-e", "-static", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EndpointAddrHTTP, "a", cfg.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&cfg.APIPrefix, "p", cfg.APIPrefix, "API route prefix")
	fs.StringVar(&cfg.Storage, "s", cfg.Storage, "storage backend")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.DynamoTable, "t", cfg.DynamoTable, "DynamoDB table")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 archive bucket")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "static files directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
