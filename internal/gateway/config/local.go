package config

import (
	"os"
	"strings"
)

// applyLocalDefaults fills in the docker-compose development stack: a SQLite
// file for records, MinIO for images, the fake backend when no key is set and
// the Vite dev server as an allowed origin. JWT_SECRET never gets a default.
func applyLocalDefaults(cfg *Config) {
	if !cfg.Database.Configured() {
		cfg.Database = DatabaseConfig{
			Driver: "sqlite",
			URL:    "file:hydrodiag.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		}
	}
	if cfg.LLM.Provider == "" && cfg.LLM.APIKey == "" {
		cfg.LLM.Provider = "fake"
	}
	cfg.Image = ImageConfig{
		Enabled:       true,
		Endpoint:      firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_MINIO_ENDPOINT")), "minio:9000"),
		Region:        cfg.Image.Region,
		AccessKey:     firstNonEmpty(cfg.Image.AccessKey, "hydrodiag"),
		SecretKey:     firstNonEmpty(cfg.Image.SecretKey, "hydrodiag123"),
		Bucket:        cfg.Image.Bucket,
		UseSSL:        false,
		PublicBaseURL: cfg.Image.PublicBaseURL,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
}
