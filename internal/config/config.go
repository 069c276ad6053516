package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"thumbapi/internal/model"
)

// DefaultThumbnailSizes is used when THUMBNAIL_SIZES is unset.
const DefaultThumbnailSizes = "200x200,500x500,800x800"

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects where originals and variants are written.
type StorageConfig struct {
	Backend string // "fs" or "minio"
	Root    string // filesystem root for the "fs" backend
	MinIO   MinIOConfig
}

// ThumbnailConfig controls the background generation pipeline.
type ThumbnailConfig struct {
	Sizes       []model.Size
	Workers     int // concurrent sizes per image
	MaxJobs     int // in-flight images per process
	JPEGQuality int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost         string
	Port            string
	MetricsPort     string
	LogLevel        string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	Database        DatabaseConfig
	Storage         StorageConfig
	Thumbnail       ThumbnailConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	sizes, err := ParseSizes(getEnv("THUMBNAIL_SIZES", DefaultThumbnailSizes))
	if err != nil {
		return nil, fmt.Errorf("THUMBNAIL_SIZES: %w", err)
	}

	cfg := &AppConfig{
		AppHost:         getEnv("APP_HOST", "localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 10)) << 20,
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SEC", 15)) * time.Second,
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "postgres"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "fs"),
			Root:    getEnv("STORAGE_ROOT", "./data"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
		},
		Thumbnail: ThumbnailConfig{
			Sizes:       sizes,
			Workers:     getEnvInt("THUMBNAIL_WORKERS", len(sizes)),
			MaxJobs:     getEnvInt("THUMBNAIL_MAX_JOBS", 64),
			JPEGQuality: getEnvInt("THUMBNAIL_JPEG_QUALITY", 95),
		},
	}
	return cfg, nil
}

// ParseSizes parses a comma separated list of "WxH" sizes. Duplicates are rejected
// because each (image, size) pair owns exactly one record.
func ParseSizes(v string) ([]model.Size, error) {
	var sizes []model.Size
	seen := make(map[model.Size]bool)
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := model.ParseSize(part)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			return nil, fmt.Errorf("duplicate size %s", s)
		}
		seen[s] = true
		sizes = append(sizes, s)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("at least one size is required")
	}
	return sizes, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
