package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultConfigFile = "config.yaml"
	APIURLEnv         = "TABLEDET_API_URL"
	MB                = 1024 * 1024
)

type Config struct {
	ListenPort    int    `yaml:"listenPort"`
	MetricsPort   int    `yaml:"metricsPort"`
	RPCPort       int    `yaml:"RPCPort"`
	APIBaseURL    string `yaml:"apiBaseURL"`
	ReleaseMode   bool   `yaml:"releaseMode"`
	LogLevel      string `yaml:"logLevel"`
	LogDevelop    bool   `yaml:"logDevelopment"`
	SessionCookie string `yaml:"sessionCookie"`

	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds"`
	HealthIntervalSeconds int `yaml:"healthIntervalSeconds"`
	SessionIdleMinutes    int `yaml:"sessionIdleMinutes"`

	MaxFileSizeMB    int `yaml:"maxFileSizeMB"`
	NameDisplayLimit int `yaml:"nameDisplayLimit"`
	ThumbnailEdge    int `yaml:"thumbnailEdge"`
	// delay after the first serve of a preview before its handle is dropped
	PreviewReleaseMillis int `yaml:"previewReleaseMillis"`

	ErrorNoticeSeconds   int `yaml:"errorNoticeSeconds"`
	SuccessNoticeSeconds int `yaml:"successNoticeSeconds"`
	WarningNoticeSeconds int `yaml:"warningNoticeSeconds"`
}

func Default() *Config {
	return &Config{
		ListenPort:            3000,
		MetricsPort:           9102,
		RPCPort:               50051,
		APIBaseURL:            DefaultAPIBaseURL,
		LogLevel:              "info",
		SessionCookie:         "tdsid",
		RequestTimeoutSeconds: 30,
		HealthIntervalSeconds: 15,
		SessionIdleMinutes:    30,
		MaxFileSizeMB:         50,
		NameDisplayLimit:      20,
		ThumbnailEdge:         240,
		PreviewReleaseMillis:  1000,
		ErrorNoticeSeconds:    5,
		SuccessNoticeSeconds:  3,
		WarningNoticeSeconds:  5,
	}
}

// Load reads an optional .env and an optional YAML file, then applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		path = getEnv("TABLEDET_CONFIG", DefaultConfigFile)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getEnv(APIURLEnv, c.APIBaseURL)
	c.ListenPort = getEnvAsInt("PORT", c.ListenPort)
	c.MetricsPort = getEnvAsInt("METRICS_PORT", c.MetricsPort)
	c.RPCPort = getEnvAsInt("RPC_PORT", c.RPCPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RequestTimeoutSeconds = getEnvAsInt("REQUEST_TIMEOUT", c.RequestTimeoutSeconds)
	c.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", c.MaxFileSizeMB)
	c.APIBaseURL = strings.TrimSuffix(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
}

func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listenPort must be between 1 and 65535, got %d", c.ListenPort)
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("apiBaseURL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("requestTimeoutSeconds must be positive")
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("maxFileSizeMB must be positive")
	}
	if c.NameDisplayLimit < 8 {
		return fmt.Errorf("nameDisplayLimit must be at least 8, got %d", c.NameDisplayLimit)
	}
	if c.ThumbnailEdge <= 0 {
		return fmt.Errorf("thumbnailEdge must be positive")
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) HealthInterval() time.Duration {
	if c.HealthIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func (c *Config) SessionIdle() time.Duration {
	if c.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * MB
}

func (c *Config) PreviewRelease() time.Duration {
	return time.Duration(c.PreviewReleaseMillis) * time.Millisecond
}

// NoticeTTLs returns the auto-dismiss delays for error, success and warning banners.
func (c *Config) NoticeTTLs() (time.Duration, time.Duration, time.Duration) {
	return time.Duration(c.ErrorNoticeSeconds) * time.Second,
		time.Duration(c.SuccessNoticeSeconds) * time.Second,
		time.Duration(c.WarningNoticeSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
