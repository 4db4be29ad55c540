package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:         AppConfig{Env: EnvDevelopment},
		Server:      ServerConfig{Port: 8080},
		Database:    DatabaseConfig{Host: "localhost", SSLMode: "disable"},
		Log:         LogConfig{Level: "info", Format: "json"},
		Auth:        AuthConfig{JWTSecret: "dev-secret", PasswordMinLength: 8, LoginAttempts: 5},
		RateLimit:   RateLimitConfig{Enabled: true},
		Worker:      WorkerConfig{Concurrency: 1},
		Controllers: ControllersConfig{DispatchBatch: 10, RetentionBatch: 10},
		Tracing:     TracingConfig{SampleRatio: 0.5},
		CORS:        CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "reposcan", cfg.App.Name)
	assert.Equal(t, 5*time.Minute, cfg.Redis.PlanCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 6, cfg.Worker.Queues["critical"])
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server port"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "LOG_LEVEL"},
		{name: "short key", mutate: func(c *Config) { c.Encryption.Key = "abcd" }, wantErr: "64 hex"},
		{name: "non-hex key", mutate: func(c *Config) { c.Encryption.Key = strings.Repeat("z", 64) }, wantErr: "hex encoded"},
		{name: "storage without bucket", mutate: func(c *Config) { c.Storage.Enabled = true }, wantErr: "BUCKET"},
		{name: "sts without role", mutate: func(c *Config) {
			c.Storage = StorageConfig{Enabled: true, Bucket: "b", AuthType: "sts_role", PresignTTL: time.Minute}
		}, wantErr: "ROLE_ARN"},
		{name: "sample ratio", mutate: func(c *Config) { c.Tracing.SampleRatio = 2 }, wantErr: "SAMPLE_RATIO"},
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
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_Production(t *testing.T) {
	cfg := validConfig()
	cfg.App.Env = EnvProduction
	assert.ErrorContains(t, cfg.Validate(), "at least 32")

	cfg.Auth.JWTSecret = strings.Repeat("s", 32)
	assert.ErrorContains(t, cfg.Validate(), "APP_ENCRYPTION_KEY")

	cfg.Encryption.Key = strings.Repeat("ab", 32)
	assert.ErrorContains(t, cfg.Validate(), "SSL")

	cfg.Database.SSLMode = "require"
	assert.ErrorContains(t, cfg.Validate(), "CORS")

	cfg.CORS.AllowedOrigins = []string{"https://app.example"}
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=require", d.DSN())
}
