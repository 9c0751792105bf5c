package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "gumdl/pkg/errors"
)

// Config holds all configuration options for the Gumroad downloader
type Config struct {
	// Gumroad session credentials
	Gumroad GumroadConfig `yaml:"gumroad" json:"gumroad"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Cache settings
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GumroadConfig holds the authenticated session identity.
// All three fields are required before the first request is made.
type GumroadConfig struct {
	AppSession string `yaml:"app_session" json:"app_session"`
	Guid       string `yaml:"guid" json:"guid"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`
}

// OutputConfig holds destination settings
type OutputConfig struct {
	RootFolder            string `yaml:"root_folder" json:"root_folder"`
	ProductFolderTemplate string `yaml:"product_folder_template" json:"product_folder_template"`
}

// CacheConfig holds the persistent download-cache location
type CacheConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	PoliteDelay         time.Duration `yaml:"polite_delay" json:"polite_delay"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Gumroad: GumroadConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		Output: OutputConfig{
			RootFolder:            "./downloads",
			ProductFolderTemplate: "{purchase_date} {product_name}",
		},
		Cache: CacheConfig{
			Path: defaultCachePath(),
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 1,
			DownloadTimeout:     30 * time.Minute,
			RetryAttempts:       3,
			PoliteDelay:         2 * time.Second,
			RequestsPerMinute:   30,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

func defaultCachePath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gumdl", "gumroad.cache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gumroad.cache"
	}
	return filepath.Join(home, ".config", "gumdl", "gumroad.cache")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("GUMDL_APP_SESSION"); v != "" {
		c.Gumroad.AppSession = v
	}
	if v := os.Getenv("GUMDL_GUID"); v != "" {
		c.Gumroad.Guid = v
	}
	if v := os.Getenv("GUMDL_USER_AGENT"); v != "" {
		c.Gumroad.UserAgent = v
	}
	if v := os.Getenv("GUMDL_ROOT_FOLDER"); v != "" {
		c.Output.RootFolder = v
	}
	if v := os.Getenv("GUMDL_PRODUCT_FOLDER_TEMPLATE"); v != "" {
		c.Output.ProductFolderTemplate = v
	}
	if v := os.Getenv("GUMDL_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("GUMDL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GUMDL_CONCURRENT_DOWNLOADS"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}
	if v := os.Getenv("GUMDL_REQUESTS_PER_MINUTE"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Download.RequestsPerMinute = val
		}
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".gumdl.yaml",
		".gumdl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "gumdl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "gumdl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".gumdl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Any missing required
// field surfaces as a single config error before any request is made.
func (c *Config) Validate() error {
	var problems []string

	if c.Gumroad.AppSession == "" {
		problems = append(problems, "gumroad app_session cookie is required")
	}
	if c.Gumroad.Guid == "" {
		problems = append(problems, "gumroad guid cookie is required")
	}
	if c.Gumroad.UserAgent == "" {
		problems = append(problems, "user agent is required")
	}
	if c.Output.RootFolder == "" {
		problems = append(problems, "output root folder is required")
	}
	if c.Output.ProductFolderTemplate == "" {
		problems = append(problems, "product folder template is required")
	}
	if c.Cache.Path == "" {
		problems = append(problems, "cache path is required")
	}
	if c.Download.ConcurrentDownloads <= 0 {
		problems = append(problems, "concurrent downloads must be positive")
	}
	if c.Download.ConcurrentDownloads > 4 {
		problems = append(problems, "concurrent downloads should not exceed 4")
	}
	if c.Download.DownloadTimeout <= 0 {
		problems = append(problems, "download timeout must be positive")
	}
	if c.Download.RetryAttempts < 0 {
		problems = append(problems, "retry attempts cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, "invalid log level")
	}

	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrorTypeConfig, strings.Join(problems, "; "))
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if appSession, ok := flags["app-session"].(string); ok && appSession != "" {
		c.Gumroad.AppSession = appSession
	}
	if guid, ok := flags["guid"].(string); ok && guid != "" {
		c.Gumroad.Guid = guid
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Output.RootFolder = output
	}
	if tmpl, ok := flags["folder-template"].(string); ok && tmpl != "" {
		c.Output.ProductFolderTemplate = tmpl
	}
	if cachePath, ok := flags["cache-path"].(string); ok && cachePath != "" {
		c.Cache.Path = cachePath
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if retries, ok := flags["max-retries"].(int); ok && retries >= 0 {
		c.Download.RetryAttempts = retries
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// LoadUnvalidated loads configuration from all sources without the
// final validation pass. Callers that obtain credentials from another
// source (the credential manager) merge them in and validate afterwards.
func LoadUnvalidated(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".gumdl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeConfig, "", err, "failed to load config file")
	}

	config.LoadFromEnv()
	config.MergeCommandLineFlags(flags)

	return config, nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	config, err := LoadUnvalidated(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
