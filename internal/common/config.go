package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/Inclusist/job-monitor-sub000/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string                  `toml:"environment"` // "development" or "production"
	Server      ServerConfig            `toml:"server"`
	Storage     StorageConfig           `toml:"storage"`
	Logging     LoggingConfig           `toml:"logging"`
	Matching    MatchingConfig          `toml:"matching"`
	Collector   CollectorConfig         `toml:"collector"`
	Embeddings  EmbeddingsConfig        `toml:"embeddings"`
	Claude      ClaudeConfig            `toml:"claude"`
	Gemini      GeminiConfig            `toml:"gemini"`
	Queries     QueriesDirConfig        `toml:"queries"`
	Sources     map[string]SourceConfig `toml:"sources"` // Keyed by adapter name (adzuna, activejobs, arbeitsagentur, jsearch)
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// MatchingConfig controls the two-stage matching pipeline
type MatchingConfig struct {
	SemanticThreshold int    `toml:"semantic_threshold" validate:"gte=0,lte=100"` // Minimum semantic score persisted
	LLMThreshold      int    `toml:"llm_threshold" validate:"gte=0,lte=100"`      // Minimum semantic score for stage 2
	ChunkMaxSize      int    `toml:"chunk_max_size" validate:"gt=0"`
	EmbedWorkers      int    `toml:"embed_workers" validate:"gt=0"`
	LLMWorkers        int    `toml:"llm_workers" validate:"gt=0"`
	RunSoftTimeout    string `toml:"run_soft_timeout"` // e.g. "30m"
}

// CollectorConfig controls the scheduled collection cycle
type CollectorConfig struct {
	IntervalMinutes int `toml:"interval_minutes" validate:"gt=0"`
	GraceMinutes    int `toml:"grace_minutes" validate:"gte=0"` // Covers clock skew on posted_within windows
	EnrichPerTick   int `toml:"enrich_per_tick" validate:"gt=0"`
	EnrichWorkers   int `toml:"enrich_workers" validate:"gt=0"`
	BackfillDays    int `toml:"backfill_days" validate:"gt=0"`
}

// EmbeddingsConfig controls the embedding model
type EmbeddingsConfig struct {
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension" validate:"gt=0"`
	BatchSize int    `toml:"batch_size" validate:"gt=0"`
}

// ClaudeConfig contains Anthropic Claude settings for the stage-2 analyzer
type ClaudeConfig struct {
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	Temperature     float32 `toml:"temperature"`
	MaxTokens       int     `toml:"max_tokens"`
	Timeout         string  `toml:"timeout"`             // e.g. "60s"
	RequestsPerMin  int     `toml:"requests_per_minute"` // Token-bucket rate shared across LLM workers
}

// GeminiConfig contains Google Gemini settings for enrichment and embeddings
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float32 `toml:"temperature"`
	Timeout        string  `toml:"timeout"`
	RequestsPerMin int     `toml:"requests_per_minute"`
}

// QueriesDirConfig contains configuration for seed query file loading
type QueriesDirConfig struct {
	Dir string `toml:"dir"` // Directory containing seed query files (YAML)
}

// SourceConfig contains per-adapter settings
type SourceConfig struct {
	Enabled              bool   `toml:"enabled"`
	BaseURL              string `toml:"base_url"`
	AppID                string `toml:"app_id"` // Adzuna-style app id (optional)
	APIKey               string `toml:"api_key"`
	RequestsPerPeriod    int    `toml:"requests_per_period"`
	PeriodMinutes        int    `toml:"period_minutes"`
	ResultsPerRequestMax int    `toml:"results_per_request_max"`
	Country              string `toml:"country"` // Lowercased ISO-3166-1 alpha-2, enforced client-side
}

// NewDefaultConfig returns a config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/jobmon",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Matching: MatchingConfig{
			SemanticThreshold: DefaultSemanticThreshold,
			LLMThreshold:      DefaultLLMThreshold,
			ChunkMaxSize:      DefaultChunkMaxSize,
			EmbedWorkers:      DefaultEmbedWorkers,
			LLMWorkers:        DefaultLLMWorkers,
			RunSoftTimeout:    "30m",
		},
		Collector: CollectorConfig{
			IntervalMinutes: DefaultCollectorIntervalMinutes,
			GraceMinutes:    DefaultCollectorGraceMinutes,
			EnrichPerTick:   DefaultEnrichPerTick,
			EnrichWorkers:   DefaultEnrichWorkers,
			BackfillDays:    DefaultBackfillDays,
		},
		Embeddings: EmbeddingsConfig{
			Model:     "gemini-embedding-001",
			Dimension: 768,
			BatchSize: 32,
		},
		Claude: ClaudeConfig{
			Model:          "claude-sonnet-4-20250514",
			Temperature:    0.2,
			MaxTokens:      2048,
			Timeout:        "60s",
			RequestsPerMin: 50,
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.0-flash",
			Temperature:    0.1,
			Timeout:        "60s",
			RequestsPerMin: 60,
		},
		Queries: QueriesDirConfig{
			Dir: "./queries",
		},
		Sources: map[string]SourceConfig{},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configured values against struct constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Matching.LLMThreshold < c.Matching.SemanticThreshold {
		return fmt.Errorf("invalid configuration: llm_threshold (%d) below semantic_threshold (%d)",
			c.Matching.LLMThreshold, c.Matching.SemanticThreshold)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JOBMON_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("JOBMON_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JOBMON_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("JOBMON_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("JOBMON_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("JOBMON_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if v := os.Getenv("JOBMON_SEMANTIC_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Matching.SemanticThreshold = n
		}
	}
	if v := os.Getenv("JOBMON_LLM_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Matching.LLMThreshold = n
		}
	}
	if v := os.Getenv("JOBMON_COLLECTOR_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Collector.IntervalMinutes = n
		}
	}

	// Per-source API keys: JOBMON_SOURCE_<NAME>_API_KEY
	for name, src := range config.Sources {
		envName := "JOBMON_SOURCE_" + strings.ToUpper(name) + "_API_KEY"
		if key := os.Getenv(envName); key != "" {
			src.APIKey = key
			config.Sources[name] = src
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables → KV store → config fallback → error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"JOBMON_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"JOBMON_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// CollectorInterval returns the collection interval as a duration
func (c *CollectorConfig) CollectorInterval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// CronSpec returns the cron expression matching the configured interval.
// Intervals of an hour or more run on the hour; shorter intervals run
// every N minutes.
func (c *CollectorConfig) CronSpec() string {
	if c.IntervalMinutes >= 60 {
		return "0 * * * *"
	}
	return fmt.Sprintf("*/%d * * * *", c.IntervalMinutes)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
