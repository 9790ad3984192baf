package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendFS        = "fs"
	BackendPathstore = "pathstore"
)

type Config struct {
	Port string `toml:"port"`

	// Auth
	APIKey string `toml:"api_key"`

	// Artifact storage
	StorageBackend  string `toml:"storage_backend"`
	StorageRoot     string `toml:"storage_root"`
	PathstoreURL    string `toml:"pathstore_url"`
	PathstoreAPIKey string `toml:"pathstore_api_key"`

	// Review routing
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	ReviewTemplate      string  `toml:"review_template"`

	// Worker pool
	WorkerCount  int `toml:"worker_count"`
	MaxQueueSize int `toml:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `toml:"max_upload_bytes"`

	// Job state
	JobTTL     time.Duration `toml:"job_ttl"`
	LedgerPath string        `toml:"ledger_path"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// PDF
	PDFFallbackPdfinfo bool `toml:"pdf_fallback_pdfinfo"`
}

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() Config {
	return Config{
		Port:                "8090",
		StorageBackend:      BackendFS,
		StorageRoot:         "./data",
		PathstoreURL:        "http://localhost:8080",
		ConfidenceThreshold: 0.70,
		WorkerCount:         4,
		MaxQueueSize:        100,
		MaxUploadBytes:      10485760, // 10MB
		JobTTL:              1 * time.Hour,
		LedgerPath:          "./data/runs.db",
		LogLevel:            "info",
		LogFormat:           "json",
		PDFFallbackPdfinfo:  true,
	}
}

// Load builds the configuration from defaults, the TOML file at path (or
// DOCREVIEW_CONFIG when path is empty) and the environment, in that order.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("DOCREVIEW_CONFIG")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("DOCREVIEW_API_KEY", c.APIKey)

	c.StorageBackend = envOr("STORAGE_BACKEND", c.StorageBackend)
	c.StorageRoot = envOr("STORAGE_ROOT", c.StorageRoot)
	c.PathstoreURL = envOr("PATHSTORE_URL", c.PathstoreURL)
	c.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", c.PathstoreAPIKey)

	c.ConfidenceThreshold = envFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.ReviewTemplate = envOr("REVIEW_TEMPLATE", c.ReviewTemplate)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)

	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)
	c.LedgerPath = envOr("LEDGER_PATH", c.LedgerPath)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)

	c.PDFFallbackPdfinfo = envBool("PDF_FALLBACK_PDFINFO", c.PDFFallbackPdfinfo)
}

func (c *Config) normalize() {
	def := Default()
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = def.JobTTL
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.StorageBackend == "" {
		c.StorageBackend = def.StorageBackend
	}
}

// Validate checks the settings every command depends on.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendFS:
		if c.StorageRoot == "" {
			return fmt.Errorf("STORAGE_ROOT is required for the fs backend")
		}
	case BackendPathstore:
		if c.PathstoreURL == "" {
			return fmt.Errorf("PATHSTORE_URL is required for the pathstore backend")
		}
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required for the pathstore backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)", c.StorageBackend, BackendFS, BackendPathstore)
	}
	if c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within (0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_PATH is required")
	}
	return nil
}

// ValidateServer additionally checks the settings the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCREVIEW_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
