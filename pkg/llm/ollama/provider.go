// Package ollama implements the llm provider interfaces against a local
// Ollama server. Useful for development without an OpenAI key.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/synaptiq/knowledged/pkg/llm"
	"github.com/synaptiq/knowledged/pkg/utils/httpclient"
	"github.com/synaptiq/knowledged/pkg/utils/json"
)

// ProviderName identifies this provider in the registry.
const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config holds Ollama provider settings.
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel string        `json:"embed_model" mapstructure:"embed_model"`
	ChatModel  string        `json:"chat_model" mapstructure:"chat_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	// Temperature is passed through to the model options. Zero means the
	// model default.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// DefaultConfig returns local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:11434",
		EmbedModel:  "nomic-embed-text",
		ChatModel:   "llama3.1:8b",
		Timeout:     120 * time.Second,
		MaxRetries:  2,
		Temperature: 0.2,
	}
}

// Provider is the Ollama implementation of llm.Provider.
type Provider struct {
	config *Config
	// embedClient retries; embedding requests are idempotent reads.
	embedClient *httpclient.Client
	// chatClient has no retries; a failed generation surfaces instead of
	// silently running the model again.
	chatClient *httpclient.Client
	// streamClient has no retries; a partial stream must never replay.
	streamClient *http.Client
}

// NewProvider builds a provider from a loosely-typed config map.
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig builds a provider from structured config.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config:       cfg,
		embedClient:  httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		chatClient:   httpclient.NewClient(cfg.Timeout, 0),
		streamClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings via the /api/embed endpoint.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var embedResp embedResponse
	err := p.embedClient.PostJSON(ctx, p.config.BaseURL+"/api/embed", nil, embedRequest{
		Model: p.config.EmbedModel,
		Input: texts,
	}, &embedResp)
	if err != nil {
		return nil, err
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(embedResp.Embeddings), len(texts))
	}
	return embedResp.Embeddings, nil
}

// EmbedSingle embeds one text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("ollama: no embedding returned")
	}
	return embeddings[0], nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate produces a complete answer via /api/generate.
func (p *Provider) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.GenerateResponse, error) {
	var genResp generateResponse
	err := p.chatClient.PostJSON(ctx, p.config.BaseURL+"/api/generate", nil, p.buildGenerateRequest(prompt, systemPrompt, false), &genResp)
	if err != nil {
		return nil, err
	}

	return &llm.GenerateResponse{
		Content: genResp.Response,
		TokenUsage: &llm.TokenUsage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
	}, nil
}

// GenerateStream streams the answer as NDJSON lines from /api/generate.
func (p *Provider) GenerateStream(ctx context.Context, prompt, systemPrompt string) (<-chan llm.StreamChunk, error) {
	body, err := json.Marshal(p.buildGenerateRequest(prompt, systemPrompt, true))
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, fmt.Errorf("ollama: stream request failed with status %d", resp.StatusCode)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var event generateResponse
			if err := json.Unmarshal(line, &event); err != nil {
				emit(ctx, out, llm.StreamChunk{Err: fmt.Errorf("ollama: decode stream event: %w", err)})
				return
			}
			if event.Response != "" {
				if !emit(ctx, out, llm.StreamChunk{Delta: event.Response}) {
					return
				}
			}
			if event.Done {
				emit(ctx, out, llm.StreamChunk{Done: true})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			emit(ctx, out, llm.StreamChunk{Err: err})
			return
		}
		emit(ctx, out, llm.StreamChunk{Done: true})
	}()

	return out, nil
}

func emit(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) buildGenerateRequest(prompt, systemPrompt string, stream bool) generateRequest {
	return generateRequest{
		Model:   p.config.ChatModel,
		Prompt:  prompt,
		System:  systemPrompt,
		Stream:  stream,
		Options: generateOptions{Temperature: p.config.Temperature},
	}
}
