package config

import (
	"fmt"
	"os"
	"strconv"
)

// Backend identifiers for the storage variant. The set is closed: anything
// else is a startup error, never a per-request branch.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabasePath   string
	StorageRoot    string // Base path for locally stored uploads
	PublicBaseURL  string // Origin under which local locators are served
	StorageBackend string
	JWTSecret      string // Never logged
	Production     bool

	S3 S3Config
}

// S3Config holds the settings for the remote object-storage variant.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional, for S3-compatible services
	UsePathStyle    bool
	PublicBaseURL   string // Optional override for retrieval URLs (e.g. CDN)
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:     port,
		DatabasePath:   getEnv("DATABASE_PATH", "./otobox.db"),
		StorageRoot:    getEnv("STORAGE_ROOT", "./storage"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		StorageBackend: getEnv("STORAGE_BACKEND", BackendLocal),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Production:     getEnv("APP_ENV", "development") == "production",
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          os.Getenv("S3_BUCKET"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
			PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	switch cfg.StorageBackend {
	case BackendLocal, BackendS3:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == BackendS3 && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET must be set for the s3 storage backend")
	}

	return cfg, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
