package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/ignore"
)

// FileName is the configuration file looked up in the data directory.
const FileName = "amandrive.yaml"

// Config represents the complete amandrive configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
}

// StorageConfig locates user files and engine state.
type StorageConfig struct {
	// Root holds user files laid out as <root>/<owner>/<path>/<name>.
	Root string `yaml:"root" json:"root"`
	// DataDir holds index.bleve, metadata.db and logs.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Ignore lists gitignore-style patterns for entries that are never
	// indexed. <root>/.driveignore and <root>/<owner>/.driveignore add more.
	Ignore []string `yaml:"ignore" json:"ignore"`
}

// IndexConfig configures the ingestion pipeline.
type IndexConfig struct {
	QueueCapacity int    `yaml:"queue_capacity" json:"queue_capacity"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
	// DocumentTypes are extensions categorised as "document".
	DocumentTypes []string `yaml:"document_types" json:"document_types"`
	// TextTypes are extensions read as plain text by the extractor.
	TextTypes        []string `yaml:"text_types" json:"text_types"`
	MaxExtractBytes  int64    `yaml:"max_extract_bytes" json:"max_extract_bytes"`
	ExtractCacheSize int      `yaml:"extract_cache_size" json:"extract_cache_size"`
	// SweepInterval is how often soft-delete flags are reconciled. "0" disables.
	SweepInterval string `yaml:"sweep_interval" json:"sweep_interval"`
}

// SearchConfig configures relevance and paging.
type SearchConfig struct {
	// Boosts maps a searchable field (name, tag, content) to its weight.
	Boosts map[string]float64 `yaml:"boosts" json:"boosts"`
	// SubstringBoost multiplies the substring strategy group.
	SubstringBoost  float64 `yaml:"substring_boost" json:"substring_boost"`
	DefaultPageSize int     `yaml:"default_page_size" json:"default_page_size"`
	MaxPageSize     int     `yaml:"max_page_size" json:"max_page_size"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// WatchConfig configures the storage watcher.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// DefaultDocumentTypes is the document extension allow-list.
var DefaultDocumentTypes = []string{
	"pdf", "doc", "docx", "ppt", "pptx", "xls", "xlsx", "txt", "md", "csv", "rtf", "odt",
}

// DefaultTextTypes are extensions read as plain text.
var DefaultTextTypes = []string{
	"txt", "md", "csv", "log", "json", "xml", "yaml", "yml", "html", "htm",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root:    filepath.Join(DefaultDataDir(), "files"),
			DataDir: DefaultDataDir(),
			Ignore:  append([]string(nil), ignore.DefaultPatterns...),
		},
		Index: IndexConfig{
			QueueCapacity:    256,
			FlushInterval:    "1s",
			DocumentTypes:    append([]string(nil), DefaultDocumentTypes...),
			TextTypes:        append([]string(nil), DefaultTextTypes...),
			MaxExtractBytes:  32 * 1024 * 1024,
			ExtractCacheSize: 512,
			SweepInterval:    "5m",
		},
		Search: SearchConfig{
			Boosts:          map[string]float64{"name": 3, "tag": 2, "content": 1},
			SubstringBoost:  10,
			DefaultPageSize: 20,
			MaxPageSize:     200,
		},
		Server: ServerConfig{
			Addr:      ":8080",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "500ms",
		},
	}
}

// DefaultDataDir returns ~/.amandrive, or a temp dir when HOME is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "amandrive")
	}
	return filepath.Join(home, ".amandrive")
}

// Load builds the configuration. Precedence (lowest to highest):
//  1. Hardcoded defaults
//  2. The YAML file at path, or <default data dir>/amandrive.yaml when path is empty
//  3. Environment variables (AMANDRIVE_*)
//
// An explicitly given path must exist; the default file is optional.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(DefaultDataDir(), FileName)
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, driveerrors.New(driveerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file %s not found", path), err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return driveerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return driveerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies AMANDRIVE_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANDRIVE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("AMANDRIVE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("AMANDRIVE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AMANDRIVE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("AMANDRIVE_LOG_FORMAT"); v != "" {
		c.Server.LogFormat = v
	}
	if v := os.Getenv("AMANDRIVE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.QueueCapacity = n
		}
	}
	if v := os.Getenv("AMANDRIVE_FLUSH_INTERVAL"); v != "" {
		c.Index.FlushInterval = v
	}
	if v := os.Getenv("AMANDRIVE_SWEEP_INTERVAL"); v != "" {
		c.Index.SweepInterval = v
	}
	if v := os.Getenv("AMANDRIVE_WATCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Watch.Enabled = b
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return invalid("storage.data_dir must not be empty")
	}
	if _, err := ignore.New(c.Storage.Ignore...); err != nil {
		return invalid(fmt.Sprintf("storage.ignore: %v", err))
	}
	if c.Index.QueueCapacity <= 0 {
		return invalid(fmt.Sprintf("index.queue_capacity must be positive, got %d", c.Index.QueueCapacity))
	}
	if d, err := time.ParseDuration(c.Index.FlushInterval); err != nil || d <= 0 {
		return invalid(fmt.Sprintf("index.flush_interval must be a positive duration, got %q", c.Index.FlushInterval))
	}
	if d, err := parseOptionalDuration(c.Index.SweepInterval); err != nil || d < 0 {
		return invalid(fmt.Sprintf("index.sweep_interval must be a duration, got %q", c.Index.SweepInterval))
	}
	if d, err := parseOptionalDuration(c.Watch.Debounce); err != nil || d < 0 {
		return invalid(fmt.Sprintf("watch.debounce must be a duration, got %q", c.Watch.Debounce))
	}
	if c.Index.MaxExtractBytes < 0 {
		return invalid(fmt.Sprintf("index.max_extract_bytes must be non-negative, got %d", c.Index.MaxExtractBytes))
	}
	if c.Index.ExtractCacheSize < 0 {
		return invalid(fmt.Sprintf("index.extract_cache_size must be non-negative, got %d", c.Index.ExtractCacheSize))
	}
	for field, w := range c.Search.Boosts {
		switch field {
		case "name", "tag", "content":
		default:
			return invalid(fmt.Sprintf("search.boosts has unknown field %q", field))
		}
		if w < 0 {
			return invalid(fmt.Sprintf("search.boosts.%s must be non-negative, got %f", field, w))
		}
	}
	if c.Search.SubstringBoost < 0 {
		return invalid(fmt.Sprintf("search.substring_boost must be non-negative, got %f", c.Search.SubstringBoost))
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize <= 0 {
		return invalid("search page sizes must be positive")
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return invalid(fmt.Sprintf("search.default_page_size (%d) exceeds max_page_size (%d)",
			c.Search.DefaultPageSize, c.Search.MaxPageSize))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Server.LogFormat)] {
		return invalid(fmt.Sprintf("server.log_format must be 'json' or 'text', got %s", c.Server.LogFormat))
	}
	return nil
}

func invalid(msg string) error {
	return driveerrors.New(driveerrors.ErrCodeConfigInvalid, msg, nil).
		WithSuggestion("Fix the value in " + FileName + " or the matching AMANDRIVE_* variable")
}

// parseOptionalDuration treats "" and "0" as zero.
func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// FlushDuration returns the batch flush interval.
func (c *Config) FlushDuration() time.Duration {
	d, err := time.ParseDuration(c.Index.FlushInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// SweepDuration returns the soft-delete sweep interval; zero disables it.
func (c *Config) SweepDuration() time.Duration {
	d, _ := parseOptionalDuration(c.Index.SweepInterval)
	return d
}

// DebounceDuration returns the watcher debounce window.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := parseOptionalDuration(c.Watch.Debounce)
	return d
}

// IndexPath returns <data_dir>/index.bleve.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Storage.DataDir, "index.bleve")
}

// MetadataPath returns <data_dir>/metadata.db.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Storage.DataDir, "metadata.db")
}

// WriteYAML writes the configuration to path, backing up any existing file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if _, err := BackupFile(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
