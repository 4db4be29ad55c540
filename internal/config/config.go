package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all application configuration.
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Auth        AuthConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Worker      WorkerConfig
	Controllers ControllersConfig
	Storage     StorageConfig
	Encryption  EncryptionConfig
	Tracing     TracingConfig
	SCM         SCMConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string
	Env     string
	Debug   bool
	Version string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	// MaxUploadSize bounds decompressed result uploads.
	MaxUploadSize int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
	// PlanCacheTTL is how long an organization's plan stays cached.
	PlanCacheTTL time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	SamplingEnabled   bool
	SamplingThreshold int // First N identical logs per tick
	SamplingEvery     int // Then keep 1 in N

	SkipHealthLogs     bool
	SlowRequestSeconds int
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret            string
	JWTIssuer            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration

	PasswordMinLength     int
	PasswordRequireUpper  bool
	PasswordRequireLower  bool
	PasswordRequireNumber bool

	// Login attempts allowed per client IP within LoginWindow.
	LoginAttempts     int
	LoginWindow       time.Duration
	AllowRegistration bool
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds the per-IP in-process rate limit.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration
}

// WorkerConfig holds asynq worker configuration.
type WorkerConfig struct {
	Enabled     bool
	Concurrency int
	// Queue priorities by name.
	Queues   map[string]int
	MaxRetry int
	Timeout  time.Duration
}

// ControllersConfig holds background reconciliation settings.
type ControllersConfig struct {
	Enabled           bool
	DispatchInterval  time.Duration
	DispatchBatch     int
	RetentionInterval time.Duration
	RetentionBatch    int
	RetentionDryRun   bool
}

// StorageConfig holds S3 report storage configuration.
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // Custom endpoint for MinIO or other S3-compatible stores
	AuthType        string // "keys", "sts_role" or "default"
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	ExternalID      string
	Prefix          string
	PresignTTL      time.Duration
}

// EncryptionConfig holds the key used to encrypt repository tokens.
type EncryptionConfig struct {
	Key string // hex-encoded AES-256 key
}

// IsConfigured reports whether a key was provided.
func (c *EncryptionConfig) IsConfigured() bool {
	return c.Key != ""
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// SCMConfig controls how remote repositories are contacted.
type SCMConfig struct {
	Timeout          time.Duration
	AllowInternalIPs bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "reposcan"),
			Env:     getEnv("APP_ENV", EnvDevelopment),
			Debug:   getEnvBool("APP_DEBUG", false),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
			MaxUploadSize:   getEnvInt64("SERVER_MAX_UPLOAD_SIZE", 32<<20),
		},
		Database: LoadDatabase(),
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
			PlanCacheTTL:  getEnvDuration("REDIS_PLAN_CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:              getEnv("LOG_LEVEL", "info"),
			Format:             getEnv("LOG_FORMAT", "json"),
			SamplingEnabled:    getEnvBool("LOG_SAMPLING_ENABLED", false),
			SamplingThreshold:  getEnvInt("LOG_SAMPLING_THRESHOLD", 100),
			SamplingEvery:      getEnvInt("LOG_SAMPLING_EVERY", 10),
			SkipHealthLogs:     getEnvBool("LOG_SKIP_HEALTH", true),
			SlowRequestSeconds: getEnvInt("LOG_SLOW_REQUEST_SECONDS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:             getEnv("AUTH_JWT_ISSUER", "reposcan"),
			AccessTokenDuration:   getEnvDuration("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration:  getEnvDuration("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			PasswordMinLength:     getEnvInt("AUTH_PASSWORD_MIN_LENGTH", 8),
			PasswordRequireUpper:  getEnvBool("AUTH_PASSWORD_REQUIRE_UPPERCASE", true),
			PasswordRequireLower:  getEnvBool("AUTH_PASSWORD_REQUIRE_LOWERCASE", true),
			PasswordRequireNumber: getEnvBool("AUTH_PASSWORD_REQUIRE_NUMBER", true),
			LoginAttempts:         getEnvInt("AUTH_LOGIN_ATTEMPTS", 10),
			LoginWindow:           getEnvDuration("AUTH_LOGIN_WINDOW", time.Minute),
			AllowRegistration:     getEnvBool("AUTH_ALLOW_REGISTRATION", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "Content-Encoding", "X-Request-ID"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 200),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP", time.Minute),
		},
		Worker: WorkerConfig{
			Enabled:     getEnvBool("WORKER_ENABLED", true),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
			Queues: map[string]int{
				"critical": getEnvInt("WORKER_QUEUE_CRITICAL", 6),
				"default":  getEnvInt("WORKER_QUEUE_DEFAULT", 3),
				"low":      getEnvInt("WORKER_QUEUE_LOW", 1),
			},
			MaxRetry: getEnvInt("WORKER_MAX_RETRY", 3),
			Timeout:  getEnvDuration("WORKER_TASK_TIMEOUT", 10*time.Minute),
		},
		Controllers: ControllersConfig{
			Enabled:           getEnvBool("CONTROLLERS_ENABLED", true),
			DispatchInterval:  getEnvDuration("CONTROLLERS_DISPATCH_INTERVAL", 30*time.Second),
			DispatchBatch:     getEnvInt("CONTROLLERS_DISPATCH_BATCH", 100),
			RetentionInterval: getEnvDuration("CONTROLLERS_RETENTION_INTERVAL", time.Hour),
			RetentionBatch:    getEnvInt("CONTROLLERS_RETENTION_BATCH", 1000),
			RetentionDryRun:   getEnvBool("CONTROLLERS_RETENTION_DRY_RUN", false),
		},
		Storage: StorageConfig{
			Enabled:         getEnvBool("STORAGE_ENABLED", false),
			Bucket:          getEnv("STORAGE_S3_BUCKET", ""),
			Region:          getEnv("STORAGE_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("STORAGE_S3_ENDPOINT", ""),
			AuthType:        getEnv("STORAGE_S3_AUTH_TYPE", "default"),
			AccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
			RoleARN:         getEnv("STORAGE_S3_ROLE_ARN", ""),
			ExternalID:      getEnv("STORAGE_S3_EXTERNAL_ID", ""),
			Prefix:          getEnv("STORAGE_S3_PREFIX", "reports/"),
			PresignTTL:      getEnvDuration("STORAGE_PRESIGN_TTL", 15*time.Minute),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("APP_ENCRYPTION_KEY", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 0.1),
		},
		SCM: SCMConfig{
			Timeout:          getEnvDuration("SCM_TIMEOUT", 20*time.Second),
			AllowInternalIPs: getEnvBool("SCM_ALLOW_INTERNAL_IPS", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Auth.PasswordMinLength < 6 {
		return fmt.Errorf("AUTH_PASSWORD_MIN_LENGTH must be at least 6")
	}
	if c.Auth.LoginAttempts < 1 {
		return fmt.Errorf("AUTH_LOGIN_ATTEMPTS must be at least 1")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateEncryption(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0.0 and 1.0, got %f", c.Tracing.SampleRatio)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Controllers.DispatchBatch < 1 || c.Controllers.RetentionBatch < 1 {
		return fmt.Errorf("controller batch sizes must be at least 1")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	if c.Log.SamplingThreshold < 0 || c.Log.SamplingEvery < 0 {
		return fmt.Errorf("log sampling values must be non-negative")
	}
	if c.Log.SlowRequestSeconds < 0 {
		return fmt.Errorf("LOG_SLOW_REQUEST_SECONDS must be non-negative, got %d", c.Log.SlowRequestSeconds)
	}
	return nil
}

func (c *Config) validateEncryption() error {
	if c.Encryption.Key == "" {
		return nil
	}
	if len(c.Encryption.Key) != 64 {
		return fmt.Errorf("APP_ENCRYPTION_KEY must be exactly 64 hex characters, got %d", len(c.Encryption.Key))
	}
	if _, err := hex.DecodeString(c.Encryption.Key); err != nil {
		return fmt.Errorf("APP_ENCRYPTION_KEY must be hex encoded")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_S3_BUCKET is required when storage is enabled")
	}
	switch c.Storage.AuthType {
	case "default":
	case "keys":
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return fmt.Errorf("STORAGE_S3_ACCESS_KEY_ID and STORAGE_S3_SECRET_ACCESS_KEY are required for auth type 'keys'")
		}
	case "sts_role":
		if c.Storage.RoleARN == "" {
			return fmt.Errorf("STORAGE_S3_ROLE_ARN is required for auth type 'sts_role'")
		}
	default:
		return fmt.Errorf("STORAGE_S3_AUTH_TYPE must be 'default', 'keys' or 'sts_role', got '%s'", c.Storage.AuthType)
	}
	if c.Storage.PresignTTL <= 0 || c.Storage.PresignTTL > 7*24*time.Hour {
		return fmt.Errorf("STORAGE_PRESIGN_TTL must be between 1s and 7 days")
	}
	return nil
}

func (c *Config) validateProduction() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters in production")
	}
	if !c.Encryption.IsConfigured() {
		return fmt.Errorf("APP_ENCRYPTION_KEY is required in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("CORS wildcard origin not allowed in production")
	}
	if !c.RateLimit.Enabled {
		return fmt.Errorf("rate limiting must be enabled in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if c.SCM.AllowInternalIPs {
		return fmt.Errorf("SCM_ALLOW_INTERNAL_IPS must be false in production")
	}
	return nil
}

// LoadDatabase reads only the DB_* variables. Tools that need nothing but a
// database connection use it instead of Load.
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "reposcan"),
		Password:        getEnv("DB_PASSWORD", "secret"),
		Name:            getEnv("DB_NAME", "reposcan"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, p := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
