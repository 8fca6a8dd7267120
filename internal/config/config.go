// Package config loads amanrecall configuration from defaults, YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "amanrecall"

// Lexical backends.
const (
	LexicalFTS5  = "fts5"
	LexicalBleve = "bleve"
)

// Semantic scan modes.
const (
	SemanticLinear = "linear"
	SemanticHNSW   = "hnsw"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the full amanrecall configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StoreConfig locates the fragment database and chooses the lexical index.
type StoreConfig struct {
	// Path is the SQLite database written by the indexer.
	Path string `yaml:"path" json:"path"`
	// LexicalBackend is "fts5" (in-database) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
	// BlevePath persists the bleve index. Empty keeps it in memory.
	BlevePath string `yaml:"bleve_path,omitempty" json:"bleve_path,omitempty"`
	// SQLiteCacheMB sizes the SQLite page cache.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// SearchConfig tunes retrieval and fusion.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`
	// RRFConstant is k in 1/(k+rank).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// CandidateMultiplier scales how many candidates each path returns.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	// CacheTTL is how long the in-memory embedding snapshot stays fresh.
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"`
	// SemanticIndex is "linear" (exact scan) or "hnsw".
	SemanticIndex string `yaml:"semantic_index" json:"semantic_index"`
	// Timeout bounds a whole search call.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig selects the query embedding backend.
type EmbeddingsConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	Model         string `yaml:"model" json:"model"`
	Dimensions    int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost    string `yaml:"ollama_host,omitempty" json:"ollama_host,omitempty"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty" json:"openai_base_url,omitempty"`
	// OpenAIAPIKey is normally supplied via OPENAI_API_KEY, never written to disk.
	OpenAIAPIKey string `yaml:"-" json:"-"`
	Timeout      string `yaml:"timeout" json:"timeout"`
	// CacheSize is the number of query embeddings kept in the LRU.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxFailures opens the circuit breaker after this many consecutive failures.
	MaxFailures  int    `yaml:"max_failures" json:"max_failures"`
	ResetTimeout string `yaml:"reset_timeout" json:"reset_timeout"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           DefaultStorePath(),
			LexicalBackend: LexicalFTS5,
			SQLiteCacheMB:  64,
		},
		Search: SearchConfig{
			DefaultLimit:        5,
			MaxLimit:            50,
			RRFConstant:         60,
			CandidateMultiplier: 2,
			CacheTTL:            "60s",
			SemanticIndex:       SemanticLinear,
			Timeout:             "10s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:     ProviderOllama,
			Model:        "nomic-embed-text",
			Timeout:      "5s",
			CacheSize:    1000,
			MaxFailures:  3,
			ResetTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// DefaultStorePath returns ~/.amanrecall/recall.db.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+appName, "recall.db")
	}
	return filepath.Join(home, "."+appName, "recall.db")
}

// GetUserConfigPath follows the XDG base directory layout:
//   - $XDG_CONFIG_HOME/amanrecall/config.yaml
//   - ~/.config/amanrecall/config.yaml
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", appName, "config.yaml")
	}
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// Load builds the configuration for dir, in increasing precedence:
//  1. Defaults
//  2. User config (~/.config/amanrecall/config.yaml)
//  3. Project config (.amanrecall.yaml or .amanrecall.yml in dir)
//  4. Environment variables (AMANRECALL_*, OPENAI_API_KEY)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads an explicit config file on top of the defaults and env.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{"." + appName + ".yaml", "." + appName + ".yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies every non-zero field of other over c.
func (c *Config) mergeWith(other *Config) {
	mergeString(&c.Store.Path, other.Store.Path)
	mergeString(&c.Store.LexicalBackend, other.Store.LexicalBackend)
	mergeString(&c.Store.BlevePath, other.Store.BlevePath)
	mergeInt(&c.Store.SQLiteCacheMB, other.Store.SQLiteCacheMB)

	mergeInt(&c.Search.DefaultLimit, other.Search.DefaultLimit)
	mergeInt(&c.Search.MaxLimit, other.Search.MaxLimit)
	mergeInt(&c.Search.RRFConstant, other.Search.RRFConstant)
	mergeInt(&c.Search.CandidateMultiplier, other.Search.CandidateMultiplier)
	mergeString(&c.Search.CacheTTL, other.Search.CacheTTL)
	mergeString(&c.Search.SemanticIndex, other.Search.SemanticIndex)
	mergeString(&c.Search.Timeout, other.Search.Timeout)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeString(&c.Embeddings.OpenAIBaseURL, other.Embeddings.OpenAIBaseURL)
	mergeString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeInt(&c.Embeddings.MaxFailures, other.Embeddings.MaxFailures)
	mergeString(&c.Embeddings.ResetTimeout, other.Embeddings.ResetTimeout)

	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANRECALL_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AMANRECALL_LEXICAL_BACKEND"); v != "" {
		c.Store.LexicalBackend = strings.ToLower(v)
	}
	if v := os.Getenv("AMANRECALL_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("AMANRECALL_CACHE_TTL"); v != "" {
		c.Search.CacheTTL = v
	}
	if v := os.Getenv("AMANRECALL_SEMANTIC_INDEX"); v != "" {
		c.Search.SemanticIndex = strings.ToLower(v)
	}
	if v := os.Getenv("AMANRECALL_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AMANRECALL_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANRECALL_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv("AMANRECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.Store.LexicalBackend {
	case LexicalFTS5, LexicalBleve:
	default:
		return fmt.Errorf("store.lexical_backend must be 'fts5' or 'bleve', got %q", c.Store.LexicalBackend)
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be >= 1, got %d", c.Search.CandidateMultiplier)
	}
	switch c.Search.SemanticIndex {
	case SemanticLinear, SemanticHNSW:
	default:
		return fmt.Errorf("search.semantic_index must be 'linear' or 'hnsw', got %q", c.Search.SemanticIndex)
	}

	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderStatic:
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	durations := map[string]string{
		"search.cache_ttl":         c.Search.CacheTTL,
		"search.timeout":           c.Search.Timeout,
		"embeddings.timeout":       c.Embeddings.Timeout,
		"embeddings.reset_timeout": c.Embeddings.ResetTimeout,
	}
	for field, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", field, v)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// CacheTTLDuration returns search.cache_ttl. Call after Validate.
func (c *Config) CacheTTLDuration() time.Duration {
	return mustDuration(c.Search.CacheTTL)
}

// SearchTimeout returns search.timeout. Call after Validate.
func (c *Config) SearchTimeout() time.Duration {
	return mustDuration(c.Search.Timeout)
}

// EmbedTimeout returns embeddings.timeout. Call after Validate.
func (c *Config) EmbedTimeout() time.Duration {
	return mustDuration(c.Embeddings.Timeout)
}

// BreakerResetTimeout returns embeddings.reset_timeout. Call after Validate.
func (c *Config) BreakerResetTimeout() time.Duration {
	return mustDuration(c.Embeddings.ResetTimeout)
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
