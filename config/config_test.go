package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.SecretKey.JWT = "test_secret"
	cfg.Transport.Provider = TransportNATS
	cfg.Transport.Servers = []string{"nats://localhost:4222"}
	cfg.Store.Driver = StoreMemory

	return cfg
}

func TestNew_LoadsFileAndEnv(t *testing.T) {
	t.Setenv("SECRETKEY_JWT", "env_secret")
	t.Setenv("TRANSPORT_SERVERS", "nats://a:4222,nats://b:4222")
	t.Setenv("AUTH_TOKENTTL", "30m")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "env_secret", cfg.SecretKey.JWT)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Transport.Servers)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "auth-ms", cfg.Transport.QueueGroup)
}

func TestNew_LegacyVariables(t *testing.T) {
	t.Setenv("SECRETKEY_JWT", "")
	t.Setenv("TRANSPORT_SERVERS", "")
	t.Setenv("JWT_SECRET", "legacy_secret")
	t.Setenv("NATS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "legacy_secret", cfg.SecretKey.JWT)
	assert.Equal(t, []string{"nats://one:4222", "nats://two:4222"}, cfg.Transport.Servers)
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestNew_LegacyVariablesOverrideConfigFile(t *testing.T) {
	unsetEnv(t, "TRANSPORT_SERVERS")
	unsetEnv(t, "SECRETKEY_JWT")
	t.Setenv("NATS_SERVERS", "nats://prod:4222")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://prod:4222"}, cfg.Transport.Servers)
	assert.Equal(t, "s", cfg.SecretKey.JWT)
}

func TestNew_CurrentVariablesWinOverLegacy(t *testing.T) {
	t.Setenv("TRANSPORT_SERVERS", "nats://current:4222")
	t.Setenv("SECRETKEY_JWT", "current_secret")
	t.Setenv("NATS_SERVERS", "nats://legacy:4222")
	t.Setenv("JWT_SECRET", "legacy_secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://current:4222"}, cfg.Transport.Servers)
	assert.Equal(t, "current_secret", cfg.SecretKey.JWT)
}

func TestNew_FailsFastWithoutSecret(t *testing.T) {
	t.Setenv("SECRETKEY_JWT", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := New()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secretKey.jwt is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.SecretKey.JWT = "  " },
			wantErr: "secretKey.jwt is required",
		},
		{
			name:    "missing servers",
			mutate:  func(c *Config) { c.Transport.Servers = nil },
			wantErr: "transport.servers is required",
		},
		{
			name:    "server without host",
			mutate:  func(c *Config) { c.Transport.Servers = []string{"localhost"} },
			wantErr: "malformed server address",
		},
		{
			name:    "server with wrong scheme",
			mutate:  func(c *Config) { c.Transport.Servers = []string{"http://localhost:4222"} },
			wantErr: "unsupported scheme",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Transport.Provider = "kafka" },
			wantErr: "unknown transport provider",
		},
		{
			name: "google without project",
			mutate: func(c *Config) {
				c.Transport.Provider = TransportGoogle
			},
			wantErr: "transport.projectId is required",
		},
		{
			name: "gocloud without placeholder",
			mutate: func(c *Config) {
				c.Transport.Provider = TransportGoCloud
				c.Transport.SubscriptionURL = "mem://auth"
			},
			wantErr: "must contain {pattern}",
		},
		{
			name: "gocloud with placeholder",
			mutate: func(c *Config) {
				c.Transport.Provider = TransportGoCloud
				c.Transport.SubscriptionURL = "mem://{pattern}"
			},
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Store.Driver = StoreMongo },
			wantErr: "mongo.uri is required",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Driver = StorePostgres },
			wantErr: "postgres.dsn is required",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Driver = "redis" },
			wantErr: "unknown store driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Empty(t, splitList(""))
}
