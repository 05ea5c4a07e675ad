package embedding

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
)

const (
	ProviderOpenAI      = "openai"
	ProviderOllama      = "ollama"
	ProviderHuggingFace = "huggingface"
)

// NewEmbedder builds the embedder selected by cfg.Provider. batchSize bounds how many chunks go
// into one embedding request.
func NewEmbedder(cfg *config.EmbedConfig, batchSize int) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg, batchSize)
	case ProviderOllama:
		return NewOllamaEmbedder(cfg, batchSize)
	case ProviderHuggingFace:
		return NewHuggingFaceEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

func NewOpenAIEmbedder(cfg *config.EmbedConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.Key != "" {
		opts = append(opts, openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.EmbedConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
}

// NewHuggingFaceEmbedder uses the inference API; the token is read from HUGGINGFACEHUB_API_TOKEN.
func NewHuggingFaceEmbedder(cfg *config.EmbedConfig) (*huggingface.Huggingface, error) {
	hf, err := huggingface.NewHuggingface(huggingface.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("init huggingface embedder: %w", err)
	}
	return hf, nil
}
