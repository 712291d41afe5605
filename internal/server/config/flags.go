package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/erpkeeper/internal/flagx"
)

// parseFlags overrides selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-db string    database driver: postgres, mongo or memory
//	-s string     access-token HMAC secret
//	-rs string    refresh-token HMAC secret
//	-t duration   access-token lifetime (e.g. "15m")
//	-r duration   refresh-token lifetime (e.g. "240h")
//	-b string     S3 bucket name
//	-e string     S3 base endpoint
//	-n string     notification sink: log, smtp or nats
//	-l string     log level
//
// Arguments not in this list (including -c / -config) are filtered out
// first with flagx.FilterArgs.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-db", "-s", "-rs", "-t", "-r", "-b", "-e", "-n", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDriver, "db", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "rs", config.RefreshTokenSecret, "refresh token secret")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenTTL, "r", config.RefreshTokenTTL, "refresh token lifetime")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.NotifySink, "n", config.NotifySink, "notification sink")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
