package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	Database  DatabaseConfig
	LLM       LLMConfig
	Image     ImageConfig
	Auth      AuthConfig
	Equipment EquipmentConfig
	Cache     CacheConfig
	CORS      CORSConfig
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

// Configured reports whether a relational store was requested.
func (c DatabaseConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	Timeout  time.Duration
	RPS      float64
	Burst    int
}

type ImageConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

func (c ImageConfig) CanUseS3() bool {
	return c.Enabled &&
		strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type AuthConfig struct {
	JWTSecret string
	OwnerID   string
}

type EquipmentConfig struct {
	// MaxQuestions is the hard question cap; 0 leaves it to the prompt.
	MaxQuestions int
}

type CORSConfig struct {
	// AllowedOrigins may call the API from a browser with credentials.
	AllowedOrigins []string
}

type CacheConfig struct {
	SessionSize int
	SessionTTL  time.Duration
}

func (c Config) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "local")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")
	cfg := &Config{
		Port: normalizePort(firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), ":8081")),
		Env:  env,
		Database: DatabaseConfig{
			Driver: firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_DRIVER")), "pgx"),
			URL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		},
		LLM: LLMConfig{
			Provider: strings.TrimSpace(os.Getenv("LLM_PROVIDER")),
			APIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:    firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.5-pro"),
			Timeout:  envDuration("LLM_TIMEOUT", 90*time.Second),
			RPS:      envFloat("LLM_RPS", 0),
			Burst:    envInt("LLM_BURST", 1),
		},
		Image: loadImageConfig(),
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
			OwnerID:   strings.TrimSpace(os.Getenv("OWNER_ID")),
		},
		Equipment: EquipmentConfig{
			MaxQuestions: envInt("EQUIPMENT_MAX_QUESTIONS", 0),
		},
		Cache: CacheConfig{
			SessionSize: envInt("SESSION_CACHE_SIZE", 1024),
			SessionTTL:  envDuration("SESSION_CACHE_TTL", 2*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		},
	}
	if cfg.IsLocal() {
		applyLocalDefaults(cfg)
	}
	return cfg, nil
}

func loadImageConfig() ImageConfig {
	endpoint := strings.TrimSpace(os.Getenv("IMAGE_S3_ENDPOINT"))
	return ImageConfig{
		Enabled:       endpoint != "",
		Endpoint:      endpoint,
		Region:        firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_S3_REGION")), "us-east-1"),
		AccessKey:     firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey:     firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:        firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_S3_BUCKET")), "hydrodiag-images"),
		UseSSL:        envBool("IMAGE_S3_USE_SSL", true),
		PublicBaseURL: strings.TrimSpace(os.Getenv("IMAGE_S3_PUBLIC_BASE_URL")),
	}
}

// SetPort overrides the listen address, accepting "8080" or ":8080".
func (c *Config) SetPort(port string) {
	if strings.TrimSpace(port) != "" {
		c.Port = normalizePort(port)
	}
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
