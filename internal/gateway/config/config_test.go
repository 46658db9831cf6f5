package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Local(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("IMAGE_MINIO_ENDPOINT", "")
	t.Setenv("IMAGE_S3_ACCESS_KEY", "")
	t.Setenv("MINIO_ROOT_USER", "")
	t.Setenv("IMAGE_S3_SECRET_KEY", "")
	t.Setenv("MINIO_ROOT_PASSWORD", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.Configured())
	assert.Equal(t, "fake", cfg.LLM.Provider)
	assert.True(t, cfg.Image.CanUseS3())
	assert.Equal(t, "minio:9000", cfg.Image.Endpoint)
	assert.False(t, cfg.Image.UseSSL)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "postgres://app@db/hydro")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_TIMEOUT", "45")
	t.Setenv("LLM_RPS", "2.5")
	t.Setenv("IMAGE_S3_ENDPOINT", "")
	t.Setenv("EQUIPMENT_MAX_QUESTIONS", "5")
	t.Setenv("SESSION_CACHE_TTL", "30s")
	t.Setenv("SESSION_CACHE_SIZE", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com, ,https://admin.example.com ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsLocal())
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2.5, cfg.LLM.RPS)
	assert.False(t, cfg.Image.CanUseS3())
	assert.Equal(t, 5, cfg.Equipment.MaxQuestions)
	assert.Equal(t, 30*time.Second, cfg.Cache.SessionTTL)
	assert.Equal(t, 1024, cfg.Cache.SessionSize)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestSetPort(t *testing.T) {
	cfg := &Config{Port: ":8081"}
	cfg.SetPort("")
	assert.Equal(t, ":8081", cfg.Port)
	cfg.SetPort("7000")
	assert.Equal(t, ":7000", cfg.Port)
	cfg.SetPort("127.0.0.1:7001")
	assert.Equal(t, "127.0.0.1:7001", cfg.Port)
}
