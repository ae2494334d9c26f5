// Package config provides configuration for the hrload service and tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration of the hrload service.
type Config struct {
	// DataDir is the base directory for the database and local backups
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	GRPC    GRPCConfig    `json:"grpc" yaml:"grpc"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Auth    AuthConfig    `json:"auth" yaml:"auth"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	// Path is the database file; defaults to <data_dir>/hr.db
	Path         string        `json:"path" yaml:"path"`
	BusyTimeout  time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
	MaxOpenConns int           `json:"max_open_conns" yaml:"max_open_conns"`
	ForeignKeys  bool          `json:"foreign_keys" yaml:"foreign_keys"`
}

// StorageConfig configures where snapshot files live.
type StorageConfig struct {
	// Type is the storage backend: local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is the key prefix of snapshot files
	Prefix string `json:"prefix" yaml:"prefix"`

	// Extension is the snapshot file extension
	Extension string `json:"extension" yaml:"extension"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// AuthConfig holds the operator credential and token settings.
type AuthConfig struct {
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password"`
	Secret   string        `json:"secret" yaml:"secret"`
	TokenTTL time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

// MetricsConfig configures the reporting queries.
type MetricsConfig struct {
	// Year is the reporting year used when a request does not name one
	Year int `json:"year" yaml:"year"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/hrload",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Store: StoreConfig{
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 4,
			ForeignKeys:  true,
		},
		Storage: StorageConfig{
			Type:      StorageLocal,
			Prefix:    "backups",
			Extension: ".snap",
		},
		Auth: AuthConfig{
			Username: "admin",
			TokenTTL: time.Hour,
		},
		Metrics: MetricsConfig{
			Year: 2021,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Resolve fills in paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/hrload"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "hr.db")
	}
	if c.Storage.Type == StorageLocal && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	switch c.Storage.Type {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when storage type is s3")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Extension != "" && !strings.HasPrefix(c.Storage.Extension, ".") {
		return fmt.Errorf("storage.extension must start with '.', got %q", c.Storage.Extension)
	}

	if c.Store.MaxOpenConns < 1 {
		return fmt.Errorf("store.max_open_conns must be at least 1, got %d", c.Store.MaxOpenConns)
	}

	if c.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}

	if c.Metrics.Year < 1 || c.Metrics.Year > 9999 {
		return fmt.Errorf("metrics.year must be between 1 and 9999, got %d", c.Metrics.Year)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win over the file. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overrides cfg from HRLOAD_* environment variables. Values that
// fail to parse are ignored.
func LoadFromEnv(cfg *Config) {
	setString(&cfg.DataDir, "HRLOAD_DATA_DIR")

	setString(&cfg.HTTP.Addr, "HRLOAD_HTTP_ADDR")
	setString(&cfg.GRPC.Addr, "HRLOAD_GRPC_ADDR")
	setBool(&cfg.GRPC.Enabled, "HRLOAD_GRPC_ENABLED")

	setString(&cfg.Store.Path, "HRLOAD_DB_PATH")
	setDuration(&cfg.Store.BusyTimeout, "HRLOAD_DB_BUSY_TIMEOUT")
	setInt(&cfg.Store.MaxOpenConns, "HRLOAD_DB_MAX_OPEN_CONNS")

	setString(&cfg.Storage.Type, "HRLOAD_STORAGE_TYPE")
	setString(&cfg.Storage.Path, "HRLOAD_STORAGE_PATH")
	setString(&cfg.Storage.Prefix, "HRLOAD_STORAGE_PREFIX")
	setString(&cfg.Storage.S3.Bucket, "HRLOAD_S3_BUCKET")
	setString(&cfg.Storage.S3.Region, "HRLOAD_S3_REGION")
	setString(&cfg.Storage.S3.Endpoint, "HRLOAD_S3_ENDPOINT")
	setBool(&cfg.Storage.S3.UsePathStyle, "HRLOAD_S3_USE_PATH_STYLE")

	setString(&cfg.Auth.Username, "HRLOAD_AUTH_USERNAME")
	setString(&cfg.Auth.Password, "HRLOAD_AUTH_PASSWORD")
	setString(&cfg.Auth.Secret, "HRLOAD_AUTH_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "HRLOAD_AUTH_TOKEN_TTL")

	setInt(&cfg.Metrics.Year, "HRLOAD_METRICS_YEAR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// EnsureDirectories creates the data directory, the database directory and
// the local storage root.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.Store.Path)}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
