// Package config loads agentloom configuration from a YAML file with
// environment variable overrides.
//
// Precedence: defaults, then the YAML file, then LOOM_-prefixed
// environment variables (e.g. LOOM_PROVIDER_MODEL overrides
// provider.model).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the loom CLI and the pipelines
// built on top of it.
type Config struct {
	// Provider configures the chat completion backend.
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Embeddings configures the embedding backend.
	Embeddings EmbeddingsConfig `yaml:"embeddings" env:"EMBEDDINGS"`

	// Graph configures the JSON-backed knowledge graph.
	Graph GraphConfig `yaml:"graph" env:"GRAPH"`

	// Registry configures the handoff registry.
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Corpus configures the documentation pipeline.
	Corpus CorpusConfig `yaml:"corpus" env:"CORPUS"`

	// Taxonomy configures the verb taxonomy used for tagging.
	Taxonomy TaxonomyConfig `yaml:"taxonomy" env:"TAXONOMY"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Tracing configures the OTLP trace exporter.
	Tracing TracingConfig `yaml:"tracing" env:"TRACING"`
}

// ProviderConfig selects and configures the LLM provider.
type ProviderConfig struct {
	// Name is one of: openai, anthropic, mock.
	Name string `yaml:"name" env:"NAME"`
	// Model is the model identifier passed to the provider.
	Model string `yaml:"model" env:"MODEL"`
	// APIKey overrides the provider's standard environment variable.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL overrides the provider endpoint (proxies, gateways).
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst" env:"BURST"`
	// Timeout bounds a single completion call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of: openai, ollama, hash.
	Provider string `yaml:"provider" env:"PROVIDER"`
	// Model is the embedding model identifier.
	Model string `yaml:"model" env:"MODEL"`
	// APIKey overrides the provider's standard environment variable.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL is the Ollama endpoint (ollama provider only).
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Dimensions sets the vector width for the hash provider.
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
}

// GraphConfig locates the knowledge graph document.
type GraphConfig struct {
	// Path is the JSON file holding the graph.
	Path string `yaml:"path" env:"PATH"`
}

// RegistryConfig locates the handoff registry document.
type RegistryConfig struct {
	// Path is the JSON file holding handoff records.
	Path string `yaml:"path" env:"PATH"`
}

// CorpusConfig configures ingestion and redundancy detection.
type CorpusConfig struct {
	// LibraryPath is the JSON catalog of ingested documents.
	LibraryPath string `yaml:"library_path" env:"LIBRARY_PATH"`
	// Store is the vector store backend: memory or sqlite.
	Store string `yaml:"store" env:"STORE"`
	// SQLitePath is the database file for the sqlite store.
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	// ChunkSize is the target chunk size in tokens.
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// ChunkOverlap is the token overlap between adjacent chunks.
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	// RedundancyThreshold is the similarity above which documents group.
	RedundancyThreshold float64 `yaml:"redundancy_threshold" env:"REDUNDANCY_THRESHOLD"`
	// Extensions lists the file extensions ingested from directories.
	Extensions []string `yaml:"extensions" env:"EXTENSIONS"`
}

// TaxonomyConfig locates the verb taxonomy document.
type TaxonomyConfig struct {
	// Path is the JSON file holding verb/category/description triples.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is one of: text, json.
	Format string `yaml:"format" env:"FORMAT"`
}

// TracingConfig configures the OTLP-HTTP trace exporter.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Endpoint is the collector host[:port], without scheme.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Insecure uses plain HTTP to the collector.
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// ServiceName identifies this process in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:    "openai",
			Model:   "gpt-4o-mini",
			Burst:   1,
			Timeout: 60 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			BaseURL:    "http://localhost:11434",
			Dimensions: 256,
		},
		Graph:    GraphConfig{Path: "loom-graph.json"},
		Registry: RegistryConfig{Path: "loom-handoffs.json"},
		Corpus: CorpusConfig{
			LibraryPath:         "loom-library.json",
			Store:               "memory",
			SQLitePath:          "loom-vectors.db",
			ChunkSize:           512,
			ChunkOverlap:        64,
			RedundancyThreshold: 0.82,
			Extensions:          []string{".md", ".txt"},
		},
		Taxonomy: TaxonomyConfig{Path: "taxonomy.json"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "agentloom",
		},
	}
}

// Loader loads configuration with optional file path and env prefix.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the LOOM env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LOOM"}
}

// WithConfigPath sets the YAML file to load.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file falls back to defaults.
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// Load is shorthand for NewLoader().WithConfigPath(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Validate checks cross-field constraints the loader cannot express.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}

	switch c.Embeddings.Provider {
	case "openai", "ollama", "hash":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}

	switch c.Corpus.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown vector store %q", c.Corpus.Store)
	}

	if c.Corpus.ChunkOverlap >= c.Corpus.ChunkSize && c.Corpus.ChunkSize > 0 {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Corpus.ChunkOverlap, c.Corpus.ChunkSize)
	}

	if c.Corpus.RedundancyThreshold < 0 || c.Corpus.RedundancyThreshold > 1 {
		return fmt.Errorf("redundancy threshold %v must be in [0,1]", c.Corpus.RedundancyThreshold)
	}

	return nil
}

// ResolveAPIKey returns the configured key or the provider's standard
// environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	switch p.Name {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// ResolveAPIKey returns the configured key or the OpenAI environment variable.
func (e EmbeddingsConfig) ResolveAPIKey() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	if e.Provider == "openai" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
