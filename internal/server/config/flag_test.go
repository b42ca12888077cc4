package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		start       Config
		expected    Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:8081", "-n", "127.0.0.1:9090", "-d", "db", "-m", "redis", "-x", "redis:6379",
				"-s", "secret", "-f", "/run/secret", "-o", "keys/jwt",
				"-t", "15", "-r", "60", "-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			},
			expected: Config{
				HTTPAddr:                     "127.0.0.1:8081",
				GRPCAddr:                     "127.0.0.1:9090",
				DatabaseDSN:                  "db",
				RefreshStore:                 "redis",
				RedisAddr:                    "redis:6379",
				SecretKey:                    "secret",
				SecretKeyFile:                "/run/secret",
				SecretS3Key:                  "keys/jwt",
				AccessTokenValidityDuration:  15 * time.Minute,
				RefreshTokenValidityDuration: 60 * time.Minute,
				S3RootUser:                   "user",
				S3RootPassword:               "password",
				S3Bucket:                     "bucket",
				S3Region:                     "us-west-1",
				S3BaseEndpoint:               "http://endpoint",
			},
		},
		{
			name:     "absent duration flags keep sub-minute values",
			args:     []string{"cmd", "-c", "cfg.json", "-a", ":1"},
			start:    Config{AccessTokenValidityDuration: 90 * time.Second},
			expected: Config{HTTPAddr: ":1", AccessTokenValidityDuration: 90 * time.Second},
		},
		{
			name:        "non-numeric minutes",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := tt.start

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(&config) })
				return
			}

			require.NotPanics(t, func() { parseFlags(&config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
