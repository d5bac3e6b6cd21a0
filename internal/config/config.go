// Package config provides YAML-based configuration loading for the catalog
// backend and its maintenance commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the top-level configuration, loaded from perfumery.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Public   PublicConfig   `yaml:"public"`
	Images   ImagesConfig   `yaml:"images"`
	Loader   LoaderConfig   `yaml:"loader"`
	Rename   RenameConfig   `yaml:"rename"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds connection settings. DSN wins over the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// PublicConfig maps a URL prefix onto the directory served as static files.
type PublicConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// ImagesConfig describes where product images live. BasePath is the URL
// path stored in the database, relative to the public prefix.
type ImagesConfig struct {
	Root     string `yaml:"root"`
	BasePath string `yaml:"base_path"`
}

// LoaderConfig tunes the resumable image loader.
type LoaderConfig struct {
	BatchSize  int    `yaml:"batch_size"`
	Checkpoint string `yaml:"checkpoint"`
}

// RenameConfig drives the one-off directory renamer.
type RenameConfig struct {
	OldRoot     string `yaml:"old_root"`
	NewRoot     string `yaml:"new_root"`
	Mapping     string `yaml:"mapping"`
	Concurrency int    `yaml:"concurrency"`
}

// LogConfig selects log verbosity and output format (console or json).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path, applies any .env file found in
// the working directory plus environment overrides, and returns a validated
// Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg.finish()
}

// Parse unmarshals YAML bytes into a validated Config without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	return cfg.finish()
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}

func (c *Config) finish() (*Config, error) {
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PERFUMERY_DB_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup("PERFUMERY_DB_DSN"); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup("IMAGE_BASE_PATH"); ok && v != "" {
		c.Images.BasePath = v
	}
	if v, ok := lookup("STATIC_BASE"); ok && v != "" {
		c.Public.Prefix = v
	}
	if v, ok := lookup("HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT %q is not a number", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case DriverPostgres:
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 5 << 20
	}

	if c.Public.Dir == "" {
		c.Public.Dir = "public"
	}
	if c.Public.Prefix == "" {
		c.Public.Prefix = "/public/"
	}
	if c.Images.BasePath == "" {
		c.Images.BasePath = "/images/"
	}
	if c.Images.Root == "" {
		c.Images.Root = c.Public.Dir + "/" + strings.Trim(c.Images.BasePath, "/")
	}

	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = 10
	}
	if c.Loader.Checkpoint == "" {
		c.Loader.Checkpoint = "resume.json"
	}

	if c.Rename.Mapping == "" {
		c.Rename.Mapping = "MatchId.csv"
	}
	if c.Rename.Concurrency == 0 {
		c.Rename.Concurrency = 30
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.DSN == "" && c.Database.Name == "" {
			errs = append(errs, "database.name or database.dsn is required")
		}
	case DriverSQLite:
		if c.Database.DSN == "" && c.Database.Name == "" {
			errs = append(errs, "database.name (file path) or database.dsn is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes < 0 {
		errs = append(errs, "server.max_upload_bytes must be positive")
	}
	if !strings.HasPrefix(c.Public.Prefix, "/") {
		errs = append(errs, "public.prefix must start with /")
	}
	if !strings.HasPrefix(c.Images.BasePath, "/") {
		errs = append(errs, "images.base_path must start with /")
	}
	if c.Loader.BatchSize < 1 {
		errs = append(errs, "loader.batch_size must be at least 1")
	}
	if c.Rename.Concurrency < 1 {
		errs = append(errs, "rename.concurrency must be at least 1")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of console, json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
