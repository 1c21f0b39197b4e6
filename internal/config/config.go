package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider       string `toml:"provider" yaml:"provider"`
	Model          string `toml:"model" yaml:"model"`
	EmbeddingModel string `toml:"embedding_model" yaml:"embedding_model"`
	APIKey         string `toml:"api_key" yaml:"api_key"`
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	MaxTokens      int    `toml:"max_tokens" yaml:"max_tokens"`
}

type MemgraphConfig struct {
	URI       string `toml:"uri" yaml:"uri"`
	User      string `toml:"user" yaml:"user"`
	Password  string `toml:"password" yaml:"password"`
	BatchSize int    `toml:"batch_size" yaml:"batch_size"`
}

// ExtractionConfig holds the extraction prompt. Prompt is a fmt template with
// four %s verbs: entity types, relation types, JSON schema, chunk text.
type ExtractionConfig struct {
	Prompt        string   `toml:"prompt" yaml:"prompt"`
	EntityTypes   []string `toml:"entity_types" yaml:"entity_types"`
	RelationTypes []string `toml:"relation_types" yaml:"relation_types"`
}

type RateLimitConfig struct {
	MaxConcurrent     int `toml:"max_concurrent" yaml:"max_concurrent"`
	RequestsPerMinute int `toml:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutMS         int `toml:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries        int `toml:"max_retries" yaml:"max_retries"`
	RetryDelayMS      int `toml:"retry_delay_ms" yaml:"retry_delay_ms"`
}

func (r RateLimitConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

func (r RateLimitConfig) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelayMS) * time.Millisecond
}

type PipelineConfig struct {
	ChunkSize             int    `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap          int    `toml:"chunk_overlap" yaml:"chunk_overlap"`
	MaxChunksPerDocument  int    `toml:"max_chunks_per_document" yaml:"max_chunks_per_document"`
	MaxEstimatedTokens    int    `toml:"max_estimated_tokens" yaml:"max_estimated_tokens"`
	ExtractionConcurrency int    `toml:"extraction_concurrency" yaml:"extraction_concurrency"`
	EmbeddingConcurrency  int    `toml:"embedding_concurrency" yaml:"embedding_concurrency"`
	EmbedTargets          string `toml:"embed_targets" yaml:"embed_targets"`
	CacheDir              string `toml:"cache_dir" yaml:"cache_dir"`
	ParallelDocuments     int    `toml:"parallel_documents" yaml:"parallel_documents"`
}

type UsageConfig struct {
	DBPath   string `toml:"db_path" yaml:"db_path"`
	Encoding string `toml:"encoding" yaml:"encoding"`
	// Pricing maps a model name to USD per million tokens.
	Pricing map[string]Price `toml:"pricing" yaml:"pricing"`
}

type Price struct {
	Input  float64 `toml:"input" yaml:"input"`
	Output float64 `toml:"output" yaml:"output"`
}

type LogConfig struct {
	Debug      bool   `toml:"debug" yaml:"debug"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

type EventsConfig struct {
	AMQPURL    string `toml:"amqp_url" yaml:"amqp_url"`
	Exchange   string `toml:"exchange" yaml:"exchange"`
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"`
}

type ServerConfig struct {
	Port           string `toml:"port" yaml:"port"`
	MaxUploadBytes int64  `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type Config struct {
	LLM        LLMConfig        `toml:"llm" yaml:"llm"`
	Memgraph   MemgraphConfig   `toml:"memgraph" yaml:"memgraph"`
	Extraction ExtractionConfig `toml:"extraction" yaml:"extraction"`
	RateLimit  RateLimitConfig  `toml:"rate_limit" yaml:"rate_limit"`
	Pipeline   PipelineConfig   `toml:"pipeline" yaml:"pipeline"`
	Usage      UsageConfig      `toml:"usage" yaml:"usage"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Events     EventsConfig     `toml:"events" yaml:"events"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
}

const (
	EmbedNodes  = "nodes"
	EmbedChunks = "chunks"
	EmbedBoth   = "both"
)

func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "llama3.1:8b",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 4096,
		},
		Memgraph: MemgraphConfig{
			URI:       "bolt://localhost:7687",
			BatchSize: 500,
		},
		Extraction: ExtractionConfig{
			Prompt:        DefaultExtractionPrompt,
			EntityTypes:   []string{"PERSON", "ORGANIZATION", "LOCATION", "TECHNOLOGY", "CONCEPT", "EVENT", "PRODUCT"},
			RelationTypes: []string{"USES", "PART_OF", "WORKS_FOR", "LOCATED_IN", "RELATED_TO", "CREATED_BY", "DEPENDS_ON"},
		},
		RateLimit: RateLimitConfig{
			MaxConcurrent:     4,
			RequestsPerMinute: 60,
			TimeoutMS:         120000,
			MaxRetries:        3,
			RetryDelayMS:      1000,
		},
		Pipeline: PipelineConfig{
			ChunkSize:             800,
			ChunkOverlap:          100,
			MaxChunksPerDocument:  500,
			MaxEstimatedTokens:    400000,
			ExtractionConcurrency: 4,
			EmbeddingConcurrency:  8,
			EmbedTargets:          EmbedBoth,
			CacheDir:              ".docgraph/cache",
			ParallelDocuments:     2,
		},
		Usage: UsageConfig{
			DBPath:   ".docgraph/usage",
			Encoding: "cl100k_base",
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Events: EventsConfig{
			Exchange:   "docgraph.status",
			BufferSize: 256,
		},
		Server: ServerConfig{
			Port:           "8080",
			MaxUploadBytes: 32 << 20,
		},
	}
}

// Load reads a TOML or YAML file on top of Default. The format follows the extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Pipeline.CacheDir, "CACHE_DIR")
	setString(&c.Usage.DBPath, "USAGE_DB_PATH")
	setString(&c.Events.AMQPURL, "AMQP_URL")
	setString(&c.Server.Port, "PORT")
	setString(&c.Log.File, "LOG_FILE")
	if v, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		c.Log.Debug = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.ChunkSize <= 0:
		return fmt.Errorf("pipeline.chunk_size must be positive")
	case p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize:
		return fmt.Errorf("pipeline.chunk_overlap must be in [0, chunk_size), got %d", p.ChunkOverlap)
	case p.MaxChunksPerDocument <= 0:
		return fmt.Errorf("pipeline.max_chunks_per_document must be positive")
	case p.MaxEstimatedTokens <= 0:
		return fmt.Errorf("pipeline.max_estimated_tokens must be positive")
	case p.ExtractionConcurrency <= 0 || p.EmbeddingConcurrency <= 0:
		return fmt.Errorf("pipeline concurrency must be positive")
	case p.ParallelDocuments <= 0:
		return fmt.Errorf("pipeline.parallel_documents must be positive")
	}
	switch p.EmbedTargets {
	case EmbedNodes, EmbedChunks, EmbedBoth:
	default:
		return fmt.Errorf("pipeline.embed_targets must be one of nodes, chunks, both; got %q", p.EmbedTargets)
	}
	if c.RateLimit.MaxConcurrent <= 0 {
		return fmt.Errorf("rate_limit.max_concurrent must be positive")
	}
	if c.RateLimit.MaxRetries < 0 || c.RateLimit.RetryDelayMS < 0 {
		return fmt.Errorf("rate_limit retry settings must not be negative")
	}
	if strings.Count(c.Extraction.Prompt, "%s") != 4 {
		return fmt.Errorf("extraction.prompt must contain exactly four %%s verbs")
	}
	return nil
}
