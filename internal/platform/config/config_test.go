package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"INTAKE_ADDR", "DATABASE_URL", "REDIS_URL", "BLOB_BACKEND", "UPLOAD_MAX_BYTES", "UPLOAD_ALLOWED_TYPES", "AUDIT_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BlobBackendMemory, cfg.Blob.Backend)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"pdf", "jpg", "jpeg", "png"}, cfg.Upload.AllowedTypes)
	assert.Empty(t, cfg.Database.URL)
	assert.Nil(t, cfg.RequiredDocuments)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("INTAKE_ADDR", ":9090")
	t.Setenv("BLOB_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "250ms")
	t.Setenv("UPLOAD_MAX_BYTES", "2048")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "pdf, png,,")
	t.Setenv("REQUIRED_DOCUMENT_TYPES", "photo,signature")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUDIT_BUFFER", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, BlobBackendRedis, cfg.Blob.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.DialTimeout)
	assert.Equal(t, int64(2048), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"pdf", "png"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, []string{"photo", "signature"}, cfg.RequiredDocuments)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
	assert.Equal(t, 0, cfg.Audit.Buffer)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("production requires signing key", func(t *testing.T) {
		cfg := Server{Environment: "production", JWTSigningKey: defaultJWTSigningKey, Blob: BlobConfig{Backend: BlobBackendMemory}, Upload: UploadConfig{MaxBytes: 1}}
		assert.ErrorContains(t, cfg.Validate(), "JWT_SIGNING_KEY")
	})

	t.Run("redis backend requires url", func(t *testing.T) {
		cfg := Server{Blob: BlobConfig{Backend: BlobBackendRedis}, Upload: UploadConfig{MaxBytes: 1}}
		assert.ErrorContains(t, cfg.Validate(), "REDIS_URL")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Server{Blob: BlobConfig{Backend: "s3"}, Upload: UploadConfig{MaxBytes: 1}}
		assert.ErrorContains(t, cfg.Validate(), "BLOB_BACKEND")
	})
}
