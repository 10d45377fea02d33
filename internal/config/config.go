// Package config provides configuration loading for the quire server and clients.
package config

import (
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

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Storage StorageConfig `yaml:"storage"`
	Images  ImagesConfig  `yaml:"images"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig holds settings for the CLI and terminal UI.
type ClientConfig struct {
	// ServerURL is where the REST API is reached.
	ServerURL string `yaml:"server_url"`
	// BaseURL prefixes share links. Defaults to ServerURL.
	BaseURL        string        `yaml:"base_url"`
	DefaultLibrary string        `yaml:"default_library"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StorageConfig holds the database and index locations.
type StorageConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver         string `yaml:"driver"`
	DatabasePath   string `yaml:"database_path"`
	DSN            string `yaml:"dsn"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// LibrariesRoot is where libraries created with a relative base path live.
	LibrariesRoot string `yaml:"libraries_root"`
}

// DataSource returns the DSN for Driver: the DSN when set, else the SQLite path.
func (s StorageConfig) DataSource() string {
	if s.DSN != "" {
		return s.DSN
	}
	return s.DatabasePath
}

// ImagesConfig selects where uploaded images are kept.
type ImagesConfig struct {
	// Backend is "disk" or "b2".
	Backend      string        `yaml:"backend"`
	B2KeyID      string        `yaml:"b2_key_id"`
	B2AppKey     string        `yaml:"b2_app_key"`
	B2Bucket     string        `yaml:"b2_bucket"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

// SearchConfig holds keyword search settings.
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
	TitleBoost   float64 `yaml:"title_boost"`
	Fuzzy        bool    `yaml:"fuzzy"`
	Fuzziness    int     `yaml:"fuzziness"`
}

// WatchConfig holds library inbox watch settings.
type WatchConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
}

// EnabledOrDefault reports whether inboxes are watched; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	return w.Enabled == nil || *w.Enabled
}

// RecursiveOrDefault reports whether inbox subfolders are watched; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	return w.Recursive != nil && *w.Recursive
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := finish(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		if err := finish(cfg, filepath.Dir(path)); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func finish(cfg *Config, configDir string) error {
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.LibrariesRoot = expandPath(cfg.Storage.LibrariesRoot, configDir)
	return nil
}

// LoadDotEnv loads KEY=value pairs from path into the environment when the
// file exists. Variables already set win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides cfg with the QUIRE_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	str := map[string]*string{
		"QUIRE_SERVER_URL":      &cfg.Client.ServerURL,
		"QUIRE_LIBRARY":         &cfg.Client.DefaultLibrary,
		"QUIRE_DATABASE_DRIVER": &cfg.Storage.Driver,
		"QUIRE_DATABASE_DSN":    &cfg.Storage.DSN,
		"QUIRE_IMAGES_BACKEND":  &cfg.Images.Backend,
		"QUIRE_B2_KEY_ID":       &cfg.Images.B2KeyID,
		"QUIRE_B2_APP_KEY":      &cfg.Images.B2AppKey,
		"QUIRE_B2_BUCKET":       &cfg.Images.B2Bucket,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("QUIRE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QUIRE_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("QUIRE_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid QUIRE_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// Save writes the config to path, creating its directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "quire", "config.yaml")
	}
	return "quire.yaml"
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
