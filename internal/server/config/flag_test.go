package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-d", "db", "-db", "mongo", "-s", "secret", "-rs", "secret2",
				"-t", "1m", "-r", "3m", "-b", "bucket", "-e", "http://endpoint", "-n", "smtp", "-l", "debug",
			},
			expected: &Config{
				HTTPAddr:           "127.0.0.1:9090",
				DatabaseDSN:        "db",
				DatabaseDriver:     "mongo",
				AccessTokenSecret:  "secret",
				RefreshTokenSecret: "secret2",
				AccessTokenTTL:     1 * time.Minute,
				RefreshTokenTTL:    3 * time.Minute,
				S3Bucket:           "bucket",
				S3BaseEndpoint:     "http://endpoint",
				NotifySink:         "smtp",
				LogLevel:           "debug",
			},
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"-c", "server.json", "-x", "1", "-a", ":1"},
			expected: &Config{HTTPAddr: ":1"},
		},
		{
			name:      "bad duration",
			args:      []string{"-t", "soon"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			err := parseFlags(config, tt.args)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
