package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultJWTSigningKey = "dev-secret-key-change-in-production"

	BlobBackendMemory = "memory"
	BlobBackendRedis  = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string
	JWTIssuer     string
	LogLevel      string
	LogFormat     string

	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Upload   UploadConfig
	Audit    AuditConfig

	// RequiredDocuments is the default required set for new applications.
	// Empty means every document type.
	RequiredDocuments []string
}

// DatabaseConfig selects PostgreSQL storage when URL is set; otherwise the
// in-memory stores are used.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds connection settings for the Redis blob backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type BlobConfig struct {
	Backend string
	// TTL expires stored blobs; zero keeps them forever.
	TTL              time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

type AuditConfig struct {
	// Buffer > 0 switches the publisher to async mode with that queue size.
	Buffer       int
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:          getEnv("INTAKE_ADDR", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", defaultJWTSigningKey),
		JWTIssuer:     getEnv("JWT_ISSUER", "intake"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Blob: BlobConfig{
			Backend:          strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendMemory)),
			TTL:              getEnvDuration("BLOB_TTL", 0),
			FailureThreshold: getEnvInt("BLOB_BREAKER_FAILURES", 5),
			Cooldown:         getEnvDuration("BLOB_BREAKER_COOLDOWN", 30*time.Second),
		},
		Upload: UploadConfig{
			MaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20)),
			AllowedTypes: getEnvList("UPLOAD_ALLOWED_TYPES", []string{"pdf", "jpg", "jpeg", "png"}),
		},
		Audit: AuditConfig{
			Buffer:       getEnvInt("AUDIT_BUFFER", 0),
			KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_AUDIT_TOPIC", "intake.audit"),
		},
		RequiredDocuments: getEnvList("REQUIRED_DOCUMENT_TYPES", nil),
	}
}

// IsProduction reports whether the process runs with production safeguards.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Validate rejects settings that are unsafe or inconsistent.
func (s Server) Validate() error {
	var errs []error
	if s.IsProduction() && s.JWTSigningKey == defaultJWTSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	switch s.Blob.Backend {
	case BlobBackendMemory:
	case BlobBackendRedis:
		if s.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when BLOB_BACKEND=redis"))
		}
	default:
		errs = append(errs, errors.New("BLOB_BACKEND must be memory or redis"))
	}
	if s.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if s.Audit.Buffer < 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
