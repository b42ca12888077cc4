package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags overlays config with short command-line flags:
//
//	-a  HTTP listen address        -n  gRPC listen address
//	-d  PostgreSQL DSN             -m  refresh store (postgres|redis)
//	-x  redis address
//	-s  base64 signing secret      -f  file holding the secret
//	-o  S3 object key of the secret
//	-t  access token validity, minutes
//	-r  refresh token validity, minutes
//	-u -p -b -g -e  S3 user, password, bucket, region, endpoint
//
// Only these flags are picked out of os.Args, so -c/-config and anything
// else are left for other parsers.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-n", "-d", "-m", "-x", "-s", "-f", "-o", "-t", "-r", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP listen address")
	fs.StringVar(&config.GRPCAddr, "n", config.GRPCAddr, "gRPC listen address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RefreshStore, "m", config.RefreshStore, "refresh token store: postgres or redis")
	fs.StringVar(&config.RedisAddr, "x", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "base64 signing secret")
	fs.StringVar(&config.SecretKeyFile, "f", config.SecretKeyFile, "file with the base64 signing secret")
	fs.StringVar(&config.SecretS3Key, "o", config.SecretS3Key, "S3 object key of the base64 signing secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 secret bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Flags hold whole minutes; keep sub-minute values from JSON untouched
	// unless the flag was actually given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		}
	})
}
