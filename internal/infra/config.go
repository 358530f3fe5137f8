package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	LogLevel string

	BaseURL      string
	APIKey       string
	WorkflowFile string
	Img2ImgFile  string
	InputDir     string
	OutputDir    string
	ReportFile   string

	UploadExpire    time.Duration
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollMaxAttempts int
	PollTimeout     time.Duration
	JobPause        time.Duration
	ThumbnailMax    int

	DatabaseURL      string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	APIRateLimit     int
	APIOrigins       []string

	MinIO MinIOConfig
}

// MinIOConfig configures the optional object-store mirror for generated outputs.
// An empty Endpoint disables mirroring.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object-store endpoint was configured.
func (m MinIOConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != ""
}

// LoadConfig reads optional .env files and then the process environment,
// applying defaults where needed.
func LoadConfig() (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		BaseURL:      strings.TrimRight(getEnv("TENSORART_BASE_URL", "https://ap-east-1.tensorart.cloud"), "/"),
		APIKey:       strings.TrimSpace(os.Getenv("TENSORART_API_KEY")),
		WorkflowFile: getEnv("WORKFLOW_FILE", "config/workflow.yaml"),
		Img2ImgFile:  getEnv("IMG2IMG_WORKFLOW_FILE", "config/img2img.yaml"),
		InputDir:     getEnv("INPUT_DIR", "Inputs"),
		OutputDir:    getEnv("OUTPUT_DIR", "outputs"),
		ReportFile:   getEnv("REPORT_FILE", "results.xlsx"),

		UploadExpire:    time.Second * time.Duration(getEnvInt("UPLOAD_EXPIRE_SECONDS", 3600)),
		HTTPTimeout:     time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 60)),
		PollInterval:    time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1000)),
		PollMaxInterval: time.Millisecond * time.Duration(getEnvInt("POLL_MAX_INTERVAL_MS", 8000)),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 300),
		PollTimeout:     time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 900)),
		JobPause:        time.Second * time.Duration(getEnvInt("JOB_PAUSE_SECONDS", 5)),
		ThumbnailMax:    getEnvInt("THUMBNAIL_MAX_PIXELS", 189),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Port:             getEnv("PORT", "8080"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		APIRateLimit:     getEnvInt("API_RATE_LIMIT_PER_MINUTE", 120),
		APIOrigins:       splitList(os.Getenv("API_ALLOWED_ORIGINS")),

		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Region:    getEnv("MINIO_REGION", "us-east-1"),
			Bucket:    getEnv("MINIO_BUCKET", "tensor-outputs"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("TENSORART_BASE_URL is invalid: %q", cfg.BaseURL)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.PollMaxInterval < cfg.PollInterval {
		cfg.PollMaxInterval = cfg.PollInterval
	}
	if cfg.ThumbnailMax <= 0 {
		return nil, fmt.Errorf("THUMBNAIL_MAX_PIXELS must be positive")
	}
	if cfg.MinIO.Enabled() && strings.Contains(cfg.MinIO.Endpoint, "://") {
		return nil, fmt.Errorf("MINIO_ENDPOINT must not include scheme: %q", cfg.MinIO.Endpoint)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
