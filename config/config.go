package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Registry RegistryConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/ticketsync?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds operator token signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the snapshot archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SnapshotsBucket string
	Endpoint        string // optional, e.g. http://localhost:9000 for MinIO
}

// RegistryConfig tunes the registry HTTP client.
type RegistryConfig struct {
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetryAfter     time.Duration
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	Interval                time.Duration
	MaxConcurrentOrganizers int
	// TermsVersion is the current terms-of-service version; users below it are not consented.
	TermsVersion     int
	RedactionHashKey string
	SnapshotsEnabled bool
	RetryBackoff     time.Duration
	// RunLockTTL is how long a crashed holder blocks an organizer's Redis run lock.
	RunLockTTL time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 120),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ticketsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SnapshotsBucket: getEnv("AWS_S3_SNAPSHOTS_BUCKET", "ticketsync-snapshots"),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Registry: RegistryConfig{
			Timeout:           getEnvDuration("REGISTRY_TIMEOUT", 30*time.Second),
			RequestsPerMinute: getEnvInt("REGISTRY_REQUESTS_PER_MINUTE", 100),
			MaxRetryAfter:     getEnvDuration("REGISTRY_MAX_RETRY_AFTER", 2*time.Minute),
		},
		Sync: SyncConfig{
			Interval:                getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
			MaxConcurrentOrganizers: getEnvInt("SYNC_MAX_CONCURRENT_ORGANIZERS", 4),
			TermsVersion:            getEnvInt("SYNC_TERMS_VERSION", 1),
			RedactionHashKey:        getEnv("SYNC_REDACTION_HASH_KEY", ""),
			SnapshotsEnabled:        getEnvBool("SYNC_SNAPSHOTS_ENABLED", false),
			RetryBackoff:            getEnvDuration("SYNC_RETRY_BACKOFF", 10*time.Second),
			RunLockTTL:              getEnvDuration("SYNC_RUN_LOCK_TTL", 2*time.Minute),
		},
	}
	if cfg.Sync.RedactionHashKey == "" {
		return nil, fmt.Errorf("SYNC_REDACTION_HASH_KEY is required")
	}
	if cfg.Sync.Interval <= 0 {
		return nil, fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	return cfg, nil
}

// AllowedOrigins returns the CORS origins as a list.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
