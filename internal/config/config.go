package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Port        string
	DatabaseURL string
	SQLitePath  string

	AIProvider string
	AIKey      string
	AIModel    string
	AIBaseURL  string

	ExtractTimeout      time.Duration
	ExtractRetries      int
	ExtractRetryBackoff time.Duration
	AIRateLimit         float64
	AIRateBurst         int

	BatchConcurrency int
	BatchDefaultSize int
	BatchMaxSize     int
	BatchInterval    time.Duration

	SchemaFile string
	LogLevel   string
	Env        string
}

// fileValues is the CONFIG_FILE layout. Keys use the environment variable names.
type fileValues map[string]string

// LoadConfig reads .env, then an optional YAML file named by CONFIG_FILE.
// Environment variables always win over the file.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := fileValues{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &defaults); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	get := func(key, fallback string) string {
		if v, ok := defaults[key]; ok {
			fallback = v
		}
		return GetEnv(key, fallback)
	}

	cfg := &Config{
		Port:        get("PORT", "8080"),
		DatabaseURL: get("DATABASE_URL", ""),
		SQLitePath:  get("SQLITE_PATH", ""),
		AIProvider:  get("AI_PROVIDER", "openai"),
		AIKey:       get("AI_API_KEY", ""),
		AIModel:     get("AI_MODEL", ""),
		AIBaseURL:   get("AI_BASE_URL", ""),
		SchemaFile:  get("SCHEMA_FILE", ""),
		LogLevel:    get("LOG_LEVEL", "info"),
		Env:         get("ENV", "development"),
	}

	var err error
	if cfg.ExtractTimeout, err = parseDuration("EXTRACT_TIMEOUT", get("EXTRACT_TIMEOUT", "60s")); err != nil {
		return nil, err
	}
	if cfg.BatchInterval, err = parseDuration("BATCH_INTERVAL", get("BATCH_INTERVAL", "0")); err != nil {
		return nil, err
	}
	if cfg.ExtractRetries, err = parseInt("EXTRACT_RETRIES", get("EXTRACT_RETRIES", "0")); err != nil {
		return nil, err
	}
	if cfg.ExtractRetryBackoff, err = parseDuration("EXTRACT_RETRY_BACKOFF", get("EXTRACT_RETRY_BACKOFF", "1s")); err != nil {
		return nil, err
	}
	if cfg.AIRateBurst, err = parseInt("AI_RATE_BURST", get("AI_RATE_BURST", "1")); err != nil {
		return nil, err
	}
	if cfg.BatchConcurrency, err = parseInt("BATCH_CONCURRENCY", get("BATCH_CONCURRENCY", "4")); err != nil {
		return nil, err
	}
	if cfg.BatchDefaultSize, err = parseInt("BATCH_DEFAULT_SIZE", get("BATCH_DEFAULT_SIZE", "10")); err != nil {
		return nil, err
	}
	if cfg.BatchMaxSize, err = parseInt("BATCH_MAX_SIZE", get("BATCH_MAX_SIZE", "100")); err != nil {
		return nil, err
	}
	if cfg.AIRateLimit, err = strconv.ParseFloat(get("AI_RATE_LIMIT", "0"), 64); err != nil {
		return nil, fmt.Errorf("AI_RATE_LIMIT: %w", err)
	}
	return cfg, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (c *Config) Validate() error {
	if c.AIKey == "" {
		return fmt.Errorf("AI_API_KEY is required")
	}
	switch c.AIProvider {
	case "openai", "deepseek", "gemini":
	default:
		return fmt.Errorf("AI_PROVIDER %q is not supported", c.AIProvider)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}
	if c.BatchMaxSize < 1 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive")
	}
	if c.BatchDefaultSize < 1 || c.BatchDefaultSize > c.BatchMaxSize {
		return fmt.Errorf("BATCH_DEFAULT_SIZE must be between 1 and BATCH_MAX_SIZE")
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("EXTRACT_TIMEOUT must be positive")
	}
	if c.ExtractRetries < 0 {
		return fmt.Errorf("EXTRACT_RETRIES cannot be negative")
	}
	if c.ExtractRetryBackoff < 0 {
		return fmt.Errorf("EXTRACT_RETRY_BACKOFF cannot be negative")
	}
	if c.AIRateLimit < 0 {
		return fmt.Errorf("AI_RATE_LIMIT cannot be negative")
	}
	return nil
}
