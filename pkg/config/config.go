package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pzgrab/pkg/logger"
)

// Config holds all configuration for the gallery downloader
type Config struct {
	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// EXIF embedding settings
	Exif ExifConfig `yaml:"exif" json:"exif"`

	// Logging configuration
	Logging logger.Config `yaml:"logging" json:"logging"`
}

// OutputConfig holds filesystem output configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	LogFile   string `yaml:"log_file" json:"log_file"`
}

// DownloadConfig holds pipeline and transport configuration
type DownloadConfig struct {
	Workers           int           `yaml:"workers" json:"workers"`
	MaxTries          int           `yaml:"max_tries" json:"max_tries"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	TransportRetries  int           `yaml:"transport_retries" json:"transport_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	SkipConfirmation  bool          `yaml:"skip_confirmation" json:"skip_confirmation"`
}

// ExifConfig holds the capture metadata embedded into downloaded images.
// Latitude/Longitude are the site coordinates stamped into every image.
type ExifConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// DefaultConfig returns a Config with the stock defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: "gallery",
			LogFile:   "download_log.csv",
		},
		Download: DownloadConfig{
			Workers:           8,
			MaxTries:          5,
			RequestTimeout:    30 * time.Second,
			TransportRetries:  5,
			RequestsPerMinute: 0, // 0 means unlimited
			SkipConfirmation:  false,
		},
		Exif: ExifConfig{
			Enabled:   true,
			Latitude:  51.49009034271866,
			Longitude: -3.163831280770506,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides configuration from PZGRAB_* environment variables
func (c *Config) LoadFromEnv() {
	if dir := os.Getenv("PZGRAB_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}
	if logFile := os.Getenv("PZGRAB_LOG_FILE"); logFile != "" {
		c.Output.LogFile = logFile
	}
	if workers := os.Getenv("PZGRAB_WORKERS"); workers != "" {
		if v, err := strconv.Atoi(workers); err == nil && v > 0 {
			c.Download.Workers = v
		}
	}
	if tries := os.Getenv("PZGRAB_MAX_TRIES"); tries != "" {
		if v, err := strconv.Atoi(tries); err == nil && v > 0 {
			c.Download.MaxTries = v
		}
	}
	if rpm := os.Getenv("PZGRAB_REQUESTS_PER_MINUTE"); rpm != "" {
		if v, err := strconv.Atoi(rpm); err == nil && v >= 0 {
			c.Download.RequestsPerMinute = v
		}
	}
	if lat := os.Getenv("PZGRAB_LATITUDE"); lat != "" {
		if v, err := strconv.ParseFloat(lat, 64); err == nil {
			c.Exif.Latitude = v
		}
	}
	if lon := os.Getenv("PZGRAB_LONGITUDE"); lon != "" {
		if v, err := strconv.ParseFloat(lon, 64); err == nil {
			c.Exif.Longitude = v
		}
	}
	if exif := os.Getenv("PZGRAB_EXIF"); exif != "" {
		c.Exif.Enabled = strings.ToLower(exif) == "true"
	}
	if level := os.Getenv("PZGRAB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// LoadFromFile loads configuration from a YAML file. An empty path falls
// back to the standard locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
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

func (c *Config) findConfigFile() string {
	locations := []string{
		".pzgrab.yaml",
		".pzgrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "pzgrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".pzgrab.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.LogFile == "" {
		errs = append(errs, errors.New("log file path is required"))
	}
	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.MaxTries <= 0 {
		errs = append(errs, errors.New("max tries must be positive"))
	}
	if c.Download.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Download.TransportRetries < 0 {
		errs = append(errs, errors.New("transport retries cannot be negative"))
	}
	if c.Download.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Exif.Latitude < -90 || c.Exif.Latitude > 90 {
		errs = append(errs, errors.New("latitude must be between -90 and 90"))
	}
	if c.Exif.Longitude < -180 || c.Exif.Longitude > 180 {
		errs = append(errs, errors.New("longitude must be between -180 and 180"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeFlags merges command line flag values into the configuration
func (c *Config) MergeFlags(flags map[string]interface{}) {
	if dir, ok := flags["out-dir"].(string); ok && dir != "" {
		c.Output.Directory = dir
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Output.LogFile = logFile
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if tries, ok := flags["max-tries"].(int); ok && tries > 0 {
		c.Download.MaxTries = tries
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm >= 0 {
		c.Download.RequestsPerMinute = rpm
	}
	if lat, ok := flags["lat"].(float64); ok {
		c.Exif.Latitude = lat
	}
	if lon, ok := flags["lon"].(float64); ok {
		c.Exif.Longitude = lon
	}
	if skip, ok := flags["skip-exif"].(bool); ok && skip {
		c.Exif.Enabled = false
	}
	if noPrompt, ok := flags["no-prompt"].(bool); ok && noPrompt {
		c.Download.SkipConfirmation = true
	}
	if level, ok := flags["log-level"].(string); ok && level != "" {
		c.Logging.Level = level
	}
}

// Load loads configuration from all sources.
// Precedence: flags > environment (including .env) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pzgrab.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.LoadFromEnv()
	cfg.MergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
