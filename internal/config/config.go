package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-folder configuration file.
const ProjectConfigName = ".magicfolder.yaml"

// Config represents the complete MagicFolder configuration.
// It is built once at startup and handed to each component constructor.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Catalog    CatalogConfig    `yaml:"catalog" json:"catalog"`
	Extract    ExtractConfig    `yaml:"extract" json:"extract"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// StorageConfig locates the two stores on disk.
// Empty CatalogPath/VectorPath are derived from DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`
	VectorPath  string `yaml:"vector_path" json:"vector_path"`
	Collection  string `yaml:"collection" json:"collection"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static" (offline hashing embedder).
	Provider   string        `yaml:"provider" json:"provider"`
	Host       string        `yaml:"host" json:"host"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// RequestsPerSecond throttles calls to the service; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// IndexConfig tunes the vector table.
type IndexConfig struct {
	Metric   string `yaml:"metric" json:"metric"` // cos or l2
	M        int    `yaml:"m" json:"m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search"`

	// FlatThreshold turns on the approximate HNSW graph at this many rows.
	// 0 keeps search exact.
	FlatThreshold int  `yaml:"flat_threshold" json:"flat_threshold"`
	SyncWrites    bool `yaml:"sync_writes" json:"sync_writes"`
}

// CatalogConfig tunes the SQLite catalog actor.
type CatalogConfig struct {
	QueueSize     int `yaml:"queue_size" json:"queue_size"`
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// ExtractConfig controls which files yield text.
type ExtractConfig struct {
	Extensions  []string `yaml:"extensions" json:"extensions"`
	MaxFileSize int64    `yaml:"max_file_size" json:"max_file_size"`
}

type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
}

// WatchConfig configures the watch command's event source and queue.
type WatchConfig struct {
	Debounce  time.Duration `yaml:"debounce" json:"debounce"`
	QueueSize int           `yaml:"queue_size" json:"queue_size"`
	Workers   int           `yaml:"workers" json:"workers"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"` // stdio or http
	Addr      string `yaml:"addr" json:"addr"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir:    DefaultDataDir(),
			Collection: "files",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Host:       "http://localhost:11434",
			Model:      "mxbai-embed-large",
			Dimensions: 1024,
			Timeout:    60 * time.Second,
		},
		Index: IndexConfig{
			Metric:        "cos",
			M:             16,
			EfSearch:      64,
			FlatThreshold: 0,
			SyncWrites:    true,
		},
		Catalog: CatalogConfig{
			QueueSize:     64,
			BusyTimeoutMS: 5000,
		},
		Extract: ExtractConfig{
			Extensions:  []string{".txt", ".text", ".md", ".markdown"},
			MaxFileSize: 100 * 1024 * 1024,
		},
		Search: SearchConfig{
			DefaultTopK: 5,
		},
		Watch: WatchConfig{
			Debounce:  2 * time.Second,
			QueueSize: 256,
			Workers:   1,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8080",
			LogLevel:  "info",
		},
	}
}

// DefaultDataDir returns ~/.magicfolder, or a temp-dir fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".magicfolder")
	}
	return filepath.Join(home, ".magicfolder")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// Respects XDG_CONFIG_HOME when set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "magicfolder", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "magicfolder", "config.yaml")
	}
	return filepath.Join(home, ".config", "magicfolder", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/magicfolder/config.yaml)
//  3. Project config (.magicfolder.yaml in dir)
//  4. A .env file in dir (never overrides variables already set)
//  5. Environment variables (MAGICFOLDER_* and the legacy names)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := filepath.Join(dir, ProjectConfigName); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML decodes path over c; keys absent from the file keep their value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// OLLAMA_URL, EMBEDDING_MODEL, METADATA_DB_PATH and VECTOR_DB_PATH are
// honoured for compatibility; the MAGICFOLDER_* names win when both are set.
func (c *Config) applyEnvOverrides() error {
	str := func(dst *string, names ...string) {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}
	}

	str(&c.Storage.DataDir, "MAGICFOLDER_DATA_DIR")
	str(&c.Storage.CatalogPath, "METADATA_DB_PATH", "MAGICFOLDER_CATALOG_PATH")
	str(&c.Storage.VectorPath, "VECTOR_DB_PATH", "MAGICFOLDER_VECTOR_PATH")
	str(&c.Storage.Collection, "MAGICFOLDER_COLLECTION")
	str(&c.Embeddings.Provider, "MAGICFOLDER_EMBEDDINGS_PROVIDER")
	str(&c.Embeddings.Host, "OLLAMA_URL", "MAGICFOLDER_OLLAMA_HOST")
	str(&c.Embeddings.Model, "EMBEDDING_MODEL", "MAGICFOLDER_EMBEDDINGS_MODEL")
	str(&c.Index.Metric, "MAGICFOLDER_INDEX_METRIC")
	str(&c.Server.Transport, "MAGICFOLDER_TRANSPORT")
	str(&c.Server.Addr, "MAGICFOLDER_ADDR")
	str(&c.Server.LogLevel, "MAGICFOLDER_LOG_LEVEL")

	if v := os.Getenv("MAGICFOLDER_EMBEDDINGS_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAGICFOLDER_EMBEDDINGS_DIMENSIONS: %w", err)
		}
		c.Embeddings.Dimensions = n
	}
	if v := os.Getenv("MAGICFOLDER_EMBEDDINGS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MAGICFOLDER_EMBEDDINGS_TIMEOUT: %w", err)
		}
		c.Embeddings.Timeout = d
	}
	if v := os.Getenv("MAGICFOLDER_CATALOG_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAGICFOLDER_CATALOG_QUEUE_SIZE: %w", err)
		}
		c.Catalog.QueueSize = n
	}
	return nil
}

// CatalogPath returns the SQLite file path.
func (c *Config) CatalogPath() string {
	if c.Storage.CatalogPath != "" {
		return c.Storage.CatalogPath
	}
	return filepath.Join(c.Storage.DataDir, "metadata.db")
}

// VectorPath returns the vector table storage directory.
func (c *Config) VectorPath() string {
	if c.Storage.VectorPath != "" {
		return c.Storage.VectorPath
	}
	return filepath.Join(c.Storage.DataDir, "vectors")
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.Provider == "ollama" && c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model is required for the ollama provider")
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return fmt.Errorf("embeddings.requests_per_second must be non-negative, got %v", c.Embeddings.RequestsPerSecond)
	}
	if c.Storage.Collection == "" || strings.ContainsAny(c.Storage.Collection, `/\`) {
		return fmt.Errorf("storage.collection must be a plain name, got %q", c.Storage.Collection)
	}
	switch c.Index.Metric {
	case "cos", "l2":
	default:
		return fmt.Errorf("index.metric must be 'cos' or 'l2', got %q", c.Index.Metric)
	}
	if c.Index.FlatThreshold < 0 {
		return fmt.Errorf("index.flat_threshold must be non-negative, got %d", c.Index.FlatThreshold)
	}
	if c.Catalog.QueueSize <= 0 {
		return fmt.Errorf("catalog.queue_size must be positive, got %d", c.Catalog.QueueSize)
	}
	if c.Search.DefaultTopK < 0 {
		return fmt.Errorf("search.default_top_k must be non-negative, got %d", c.Search.DefaultTopK)
	}
	if c.Watch.QueueSize <= 0 || c.Watch.Workers <= 0 {
		return fmt.Errorf("watch.queue_size and watch.workers must be positive")
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %q", c.Server.Transport)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
