package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Source      SourceConfig
	Crawler     CrawlerConfig
	TextGen     TextGenConfig
	Destination DestinationConfig
	Journal     JournalConfig
	Logging     LoggingConfig
}

type SourceConfig struct {
	// BaseURL is the catalog root, e.g. "https://www.jopa.nl".
	BaseURL string
	// Brand and Category form the crawl scope below BaseURL.
	Brand    string
	Category string
	// BrandLabel is the human brand name used in filenames and prompts.
	BrandLabel string
	UserAgent  string
}

type CrawlerConfig struct {
	Workers      int
	FetchTimeout time.Duration
	RateLimitMin time.Duration
	RateLimitMax time.Duration
	// FrontierBackend selects "memory" or "redis".
	FrontierBackend string
	RedisAddr       string
}

type TextGenConfig struct {
	BaseURL string
	APIKeys []string
	Models  []string
	Timeout time.Duration
}

type DestinationConfig struct {
	AdminURL     string
	Username     string
	Password     string
	CategoryPath string
	// BrandOption is the manufacturer dropdown label to select.
	BrandOption string
	// PriceSource is the pricing mode set on every created entry.
	PriceSource string
	StepTimeout time.Duration
	Headless    bool
}

type JournalConfig struct {
	// DSN enables the Postgres sync journal when non-empty.
	DSN string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Source: SourceConfig{
			BaseURL:    getEnvOrDefault("SOURCE_BASE_URL", "https://www.jopa.nl"),
			Brand:      getEnvOrDefault("SOURCE_BRAND", "jopa"),
			Category:   getEnvOrDefault("SOURCE_CATEGORY", ""),
			BrandLabel: getEnvOrDefault("SOURCE_BRAND_LABEL", "Jopa"),
			UserAgent:  getEnvOrDefault("SOURCE_USER_AGENT", ""),
		},
		Crawler: CrawlerConfig{
			Workers:         getIntOrDefault("CRAWL_WORKERS", 4),
			FetchTimeout:    getDurationOrDefault("CRAWL_FETCH_TIMEOUT", 30*time.Second),
			RateLimitMin:    getDurationOrDefault("CRAWL_RATE_LIMIT_MIN", 1*time.Second),
			RateLimitMax:    getDurationOrDefault("CRAWL_RATE_LIMIT_MAX", 3*time.Second),
			FrontierBackend: getEnvOrDefault("CRAWL_FRONTIER", "memory"),
			RedisAddr:       getEnvOrDefault("CRAWL_REDIS_ADDR", "localhost:6379"),
		},
		TextGen: TextGenConfig{
			BaseURL: getEnvOrDefault("TEXTGEN_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKeys: getStringSliceOrDefault("TEXTGEN_API_KEYS", []string{}),
			Models:  getStringSliceOrDefault("TEXTGEN_MODELS", []string{"deepseek/deepseek-chat"}),
			Timeout: getDurationOrDefault("TEXTGEN_TIMEOUT", 60*time.Second),
		},
		Destination: DestinationConfig{
			AdminURL:     getEnvOrDefault("DEST_ADMIN_URL", "https://www.motobuzz.lv/admin"),
			Username:     getEnvOrDefault("DEST_USERNAME", ""),
			Password:     getEnvOrDefault("DEST_PASSWORD", ""),
			CategoryPath: getEnvOrDefault("DEST_CATEGORY_PATH", ""),
			BrandOption:  getEnvOrDefault("DEST_BRAND_OPTION", "Jopa"),
			PriceSource:  getEnvOrDefault("DEST_PRICE_SOURCE", "manual"),
			StepTimeout:  getDurationOrDefault("DEST_STEP_TIMEOUT", 15*time.Second),
			Headless:     getBoolOrDefault("DEST_HEADLESS", true),
		},
		Journal: JournalConfig{
			DSN: getEnvOrDefault("JOURNAL_DSN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

// SiteScope is the path prefix the crawl stays inside.
func (c *SourceConfig) SiteScope() string {
	scope := strings.TrimRight(c.BaseURL, "/") + "/" + c.Brand
	if c.Category != "" {
		scope += "/" + c.Category
	}
	return scope
}

// Validate checks the invariants every binary depends on. Stage-specific
// requirements (API keys, credentials) are checked by the stage itself.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("SOURCE_BASE_URL must not be empty")
	}
	if c.Source.Brand == "" {
		return fmt.Errorf("SOURCE_BRAND must not be empty")
	}
	if c.Crawler.Workers < 1 {
		return fmt.Errorf("CRAWL_WORKERS must be at least 1")
	}
	if c.Crawler.RateLimitMin > c.Crawler.RateLimitMax {
		return fmt.Errorf("CRAWL_RATE_LIMIT_MIN cannot be greater than CRAWL_RATE_LIMIT_MAX")
	}
	switch c.Crawler.FrontierBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CRAWL_FRONTIER must be memory or redis, got %q", c.Crawler.FrontierBackend)
	}
	return nil
}

// ValidateTextGen checks the settings the extractor needs.
func (c *Config) ValidateTextGen() error {
	if len(c.TextGen.APIKeys) == 0 {
		return fmt.Errorf("TEXTGEN_API_KEYS must not be empty")
	}
	if len(c.TextGen.Models) == 0 {
		return fmt.Errorf("TEXTGEN_MODELS must not be empty")
	}
	return nil
}

// ValidateDestination checks the settings the uploader needs.
func (c *Config) ValidateDestination() error {
	if c.Destination.Username == "" || c.Destination.Password == "" {
		return fmt.Errorf("DEST_USERNAME and DEST_PASSWORD must be set")
	}
	if c.Destination.CategoryPath == "" {
		return fmt.Errorf("DEST_CATEGORY_PATH must be set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
