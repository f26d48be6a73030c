package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Voicesync server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Transcribe TranscribeConfig
	Extract    ExtractConfig
	CRM        CRMConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Driver   string // "local" or "s3"
	LocalDir string
	S3       S3Config
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type TranscribeConfig struct {
	Provider string // "whisper" or "mock"
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type ExtractConfig struct {
	Provider    string // "groq", "openai", or "mock"
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxAttempts int
}

type CRMConfig struct {
	Timeout time.Duration
}

type PipelineConfig struct {
	Workers        int
	QueueSize      int
	StuckThreshold time.Duration
	LockTTL        time.Duration
}

var validStorageDrivers = map[string]bool{
	"local": true,
	"s3":    true,
}

var validTranscribeProviders = map[string]bool{
	"whisper": true,
	"mock":    true,
}

var validExtractProviders = map[string]bool{
	"groq":   true,
	"openai": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first if present.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("VOICESYNC_PORT", 8080),
			Env:             envString("VOICESYNC_ENV", "development"),
			ReadTimeout:     envDuration("SERVER_READ_TIMEOUT", 120*time.Second),
			WriteTimeout:    envDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: envDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Driver:   envString("STORAGE_DRIVER", "local"),
			LocalDir: envString("STORAGE_LOCAL_DIR", "./storage/recordings"),
			S3: S3Config{
				Endpoint:  os.Getenv("S3_ENDPOINT"),
				AccessKey: os.Getenv("S3_ACCESS_KEY"),
				SecretKey: os.Getenv("S3_SECRET_KEY"),
				Bucket:    envString("S3_BUCKET", "recordings"),
				UseSSL:    envBool("S3_USE_SSL", false),
			},
		},
		Transcribe: TranscribeConfig{
			Provider: envString("TRANSCRIBE_PROVIDER", "whisper"),
			BaseURL:  envString("TRANSCRIBE_BASE_URL", "https://api.openai.com/v1"),
			APIKey:   os.Getenv("TRANSCRIBE_API_KEY"),
			Model:    envString("TRANSCRIBE_MODEL", "whisper-1"),
			Timeout:  envDuration("TRANSCRIBE_TIMEOUT", 120*time.Second),
		},
		Extract: ExtractConfig{
			Provider:    envString("EXTRACT_PROVIDER", "groq"),
			BaseURL:     envString("EXTRACT_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:      os.Getenv("EXTRACT_API_KEY"),
			Model:       envString("EXTRACT_MODEL", "llama-3.1-70b-versatile"),
			Temperature: envFloat("EXTRACT_TEMPERATURE", 0.1),
			Timeout:     envDuration("EXTRACT_TIMEOUT", 60*time.Second),
			MaxAttempts: envInt("EXTRACT_MAX_ATTEMPTS", 3),
		},
		CRM: CRMConfig{
			Timeout: envDuration("CRM_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:        envInt("PIPELINE_WORKERS", 4),
			QueueSize:      envInt("PIPELINE_QUEUE_SIZE", 100),
			StuckThreshold: envDuration("PIPELINE_STUCK_THRESHOLD", 30*time.Minute),
			LockTTL:        envDuration("PIPELINE_LOCK_TTL", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validStorageDrivers[c.Storage.Driver] {
		return fmt.Errorf("STORAGE_DRIVER must be one of local, s3; got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "s3" {
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_DRIVER is s3")
		}
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_DRIVER is s3")
		}
	}

	if !validTranscribeProviders[c.Transcribe.Provider] {
		return fmt.Errorf("TRANSCRIBE_PROVIDER must be one of whisper, mock; got %q", c.Transcribe.Provider)
	}
	if c.Transcribe.Provider == "whisper" {
		if c.Transcribe.APIKey == "" {
			return fmt.Errorf("TRANSCRIBE_API_KEY is required when TRANSCRIBE_PROVIDER is whisper")
		}
		if !strings.HasPrefix(c.Transcribe.BaseURL, "http://") && !strings.HasPrefix(c.Transcribe.BaseURL, "https://") {
			return fmt.Errorf("TRANSCRIBE_BASE_URL must start with http:// or https://, got %q", c.Transcribe.BaseURL)
		}
	}

	if !validExtractProviders[c.Extract.Provider] {
		return fmt.Errorf("EXTRACT_PROVIDER must be one of groq, openai, mock; got %q", c.Extract.Provider)
	}
	if c.Extract.Provider != "mock" && c.Extract.APIKey == "" {
		return fmt.Errorf("EXTRACT_API_KEY is required when EXTRACT_PROVIDER is %s", c.Extract.Provider)
	}
	if c.Extract.MaxAttempts < 1 {
		return fmt.Errorf("EXTRACT_MAX_ATTEMPTS must be at least 1; got %d", c.Extract.MaxAttempts)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1; got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("PIPELINE_QUEUE_SIZE must be at least 1; got %d", c.Pipeline.QueueSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
