// Package knowledged wires the knowledge service together: configuration,
// component clients, the business layer, and the HTTP server.
package knowledged

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	httpopts "github.com/synaptiq/knowledged/pkg/options/http"
	logopts "github.com/synaptiq/knowledged/pkg/options/logger"
	milvusopts "github.com/synaptiq/knowledged/pkg/options/milvus"
	sqliteopts "github.com/synaptiq/knowledged/pkg/options/sqlite"
)

// Options contains every knob of the knowledge service.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains vector database configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// SQLite contains metadata database configuration.
	SQLite *sqliteopts.Options `json:"sqlite" mapstructure:"sqlite"`

	// Embedding contains embedding provider configuration.
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *LLMProviderOptions `json:"chat" mapstructure:"chat"`

	// Pipeline contains ingestion and retrieval configuration.
	Pipeline *PipelineOptions `json:"pipeline" mapstructure:"pipeline"`

	// Cache contains query cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// LLMProviderOptions configures one model provider endpoint.
type LLMProviderOptions struct {
	// Provider is the provider name (openai, ollama).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the API base address.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey authenticates against hosted providers.
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model is the model name.
	Model string `json:"model" mapstructure:"model"`

	// Timeout bounds one request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries applies to idempotent calls only; streams never retry.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the provider-side organization ID, when applicable.
	Organization string `json:"organization" mapstructure:"organization"`

	// Temperature is the sampling temperature. Low values keep citation
	// formatting stable.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// NewLLMProviderOptions returns provider defaults for a local ollama.
func NewLLMProviderOptions() *LLMProviderOptions {
	return &LLMProviderOptions{
		Provider:    "ollama",
		BaseURL:     "http://localhost:11434",
		Timeout:     120 * time.Second,
		MaxRetries:  2,
		Temperature: 0.2,
	}
}

// ToConfigMap converts the options into the provider factory's config map.
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
		"temperature":  o.Temperature,
	}
}

// PipelineOptions configures chunking, embedding, and retrieval.
type PipelineOptions struct {
	// ChunkSize is the chunk length in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the shared character count between chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of chunks retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Collection is the vector collection name.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the embedding vector dimension.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// EmbedBatchSize is how many chunks go into one embedding request.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// Workers bounds concurrent embedding batches.
	Workers int `json:"workers" mapstructure:"workers"`

	// DataDir is where uploaded documents are stored.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`
}

// NewPipelineOptions returns pipeline defaults.
func NewPipelineOptions() *PipelineOptions {
	return &PipelineOptions{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           4,
		Collection:     "knowledge_chunks",
		EmbeddingDim:   768,
		EmbedBatchSize: 32,
		Workers:        4,
		DataDir:        "_output/documents",
	}
}

// CacheOptions configures the query result cache.
type CacheOptions struct {
	// Enabled toggles the cache.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is how long a cached answer lives.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis is the cache backend connection.
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	Password     string `json:"password" mapstructure:"password"`
	Database     int    `json:"database" mapstructure:"database"`
	MaxRetries   int    `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int    `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int    `json:"min-idle-conns" mapstructure:"min-idle-conns"`
}

// NewCacheOptions returns cache defaults.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "knowledged:query:",
		Redis: &RedisOptions{
			Host:         "localhost",
			Port:         6379,
			Database:     0,
			MaxRetries:   3,
			PoolSize:     10,
			MinIdleConns: 5,
		},
	}
}

// NewOptions returns the full default configuration.
func NewOptions() *Options {
	embedding := NewLLMProviderOptions()
	embedding.Model = "nomic-embed-text"

	chat := NewLLMProviderOptions()
	chat.Model = "llama3.1:8b"

	return &Options{
		HTTP:            httpopts.NewOptions(),
		Log:             logopts.NewOptions(),
		Milvus:          milvusopts.NewOptions(),
		SQLite:          sqliteopts.NewOptions(),
		Embedding:       embedding,
		Chat:            chat,
		Pipeline:        NewPipelineOptions(),
		Cache:           NewCacheOptions(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// AddFlags registers every option on the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.SQLite.AddFlags(fs)
	o.addProviderFlags(fs, "embedding", o.Embedding)
	o.addProviderFlags(fs, "chat", o.Chat)
	o.addPipelineFlags(fs)
	o.addCacheFlags(fs)
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
}

func (o *Options) addProviderFlags(fs *pflag.FlagSet, prefix string, opts *LLMProviderOptions) {
	fs.StringVar(&opts.Provider, prefix+".provider", opts.Provider, "Provider name (openai, ollama)")
	fs.StringVar(&opts.BaseURL, prefix+".base-url", opts.BaseURL, "Provider API base URL")
	fs.StringVar(&opts.APIKey, prefix+".api-key", opts.APIKey, "Provider API key")
	fs.StringVar(&opts.Model, prefix+".model", opts.Model, "Model name")
	fs.DurationVar(&opts.Timeout, prefix+".timeout", opts.Timeout, "Request timeout")
	fs.IntVar(&opts.MaxRetries, prefix+".max-retries", opts.MaxRetries, "Max retries for idempotent calls")
	fs.Float64Var(&opts.Temperature, prefix+".temperature", opts.Temperature, "Sampling temperature")
}

func (o *Options) addPipelineFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Pipeline.ChunkSize, "pipeline.chunk-size", o.Pipeline.ChunkSize, "Chunk size in characters")
	fs.IntVar(&o.Pipeline.ChunkOverlap, "pipeline.chunk-overlap", o.Pipeline.ChunkOverlap, "Overlap between consecutive chunks")
	fs.IntVar(&o.Pipeline.TopK, "pipeline.top-k", o.Pipeline.TopK, "Chunks retrieved per question")
	fs.StringVar(&o.Pipeline.Collection, "pipeline.collection", o.Pipeline.Collection, "Vector collection name")
	fs.IntVar(&o.Pipeline.EmbeddingDim, "pipeline.embedding-dim", o.Pipeline.EmbeddingDim, "Embedding vector dimension")
	fs.IntVar(&o.Pipeline.EmbedBatchSize, "pipeline.embed-batch-size", o.Pipeline.EmbedBatchSize, "Chunks per embedding request")
	fs.IntVar(&o.Pipeline.Workers, "pipeline.workers", o.Pipeline.Workers, "Concurrent embedding batches")
	fs.StringVar(&o.Pipeline.DataDir, "pipeline.data-dir", o.Pipeline.DataDir, "Directory for uploaded documents")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable query result cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Cache TTL")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Cache key prefix")
	fs.StringVar(&o.Cache.Redis.Host, "cache.redis.host", o.Cache.Redis.Host, "Redis host")
	fs.IntVar(&o.Cache.Redis.Port, "cache.redis.port", o.Cache.Redis.Port, "Redis port")
	fs.StringVar(&o.Cache.Redis.Password, "cache.redis.password", o.Cache.Redis.Password, "Redis password")
	fs.IntVar(&o.Cache.Redis.Database, "cache.redis.database", o.Cache.Redis.Database, "Redis database number")
	fs.IntVar(&o.Cache.Redis.MaxRetries, "cache.redis.max-retries", o.Cache.Redis.MaxRetries, "Redis max retries")
	fs.IntVar(&o.Cache.Redis.PoolSize, "cache.redis.pool-size", o.Cache.Redis.PoolSize, "Redis connection pool size")
	fs.IntVar(&o.Cache.Redis.MinIdleConns, "cache.redis.min-idle-conns", o.Cache.Redis.MinIdleConns, "Redis minimum idle connections")
}

// Validate checks the combined configuration.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	for _, errs := range [][]error{o.HTTP.Validate(), o.Milvus.Validate(), o.SQLite.Validate()} {
		for _, err := range errs {
			return err
		}
	}
	if err := validateProvider("embedding", o.Embedding); err != nil {
		return err
	}
	if err := validateProvider("chat", o.Chat); err != nil {
		return err
	}
	if o.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk-size must be positive")
	}
	if o.Pipeline.ChunkOverlap < 0 || o.Pipeline.ChunkOverlap >= o.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.chunk-overlap must be in [0, chunk-size)")
	}
	if o.Pipeline.TopK <= 0 {
		return fmt.Errorf("pipeline.top-k must be positive")
	}
	if o.Pipeline.EmbeddingDim <= 0 {
		return fmt.Errorf("pipeline.embedding-dim must be positive")
	}
	return nil
}

func validateProvider(prefix string, opts *LLMProviderOptions) error {
	if opts.Provider == "" {
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.BaseURL == "" {
		return fmt.Errorf("%s.base-url is required", prefix)
	}
	if opts.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if opts.Provider == "openai" && opts.APIKey == "" {
		return fmt.Errorf("%s.api-key is required for the openai provider", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete fills in derived defaults after flags and config are parsed.
func (o *Options) Complete() error {
	if o.Pipeline.Workers <= 0 {
		o.Pipeline.Workers = 1
	}
	return nil
}
