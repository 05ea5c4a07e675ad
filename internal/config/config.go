package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	EmbedLLM EmbedConfig    `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Upload   UploadConfig   `yaml:"upload"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LogLevel string         `yaml:"log_level"`
}

// LLMConfig describes the chat model used to answer questions.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// EmbedConfig selects the embedding backend. Provider is one of openai, ollama or huggingface.
type EmbedConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize          int           `yaml:"chunk_size"`
	ChunkOverlap       int           `yaml:"chunk_overlap"`
	EmbeddingBatchSize int           `yaml:"embedding_batch_size"`
	TopK               int           `yaml:"top_k"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryOnError       bool          `yaml:"retry_on_error"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
}

type UploadConfig struct {
	MaxFileSizeMB int           `yaml:"max_file_size_mb"`
	MaxFiles      int           `yaml:"max_files"`
	AcceptTypes   []string      `yaml:"accept_types"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig enables the transcript store when DSN is set.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

const (
	DefaultChunkSize          = 1000
	DefaultChunkOverlap       = 10
	DefaultEmbeddingBatchSize = 16
	DefaultTopK               = 4
	DefaultMaxRetries         = 16
	DefaultRetryBackoff       = time.Second
	DefaultTemperature        = 0.9
	DefaultMaxFileSizeMB      = 100
	DefaultMaxFiles           = 10
	DefaultUploadTimeout      = 12 * time.Hour
	DefaultServerAddr         = ":8000"
	DefaultEmbedProvider      = "huggingface"
	DefaultEmbedModel         = "sentence-transformers/all-mpnet-base-v2"
	DefaultChatModel          = "gpt-3.5-turbo"
	DefaultDatabaseDriver     = "pgdriver"
)

// LoadConfig reads the YAML file at path (a missing file means defaults), then applies
// .env and environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ChatLLM: LLMConfig{
			Model:       DefaultChatModel,
			Temperature: DefaultTemperature,
		},
		EmbedLLM: EmbedConfig{
			Provider: DefaultEmbedProvider,
			Model:    DefaultEmbedModel,
		},
		RAG: RAGConfig{
			ChunkSize:          DefaultChunkSize,
			ChunkOverlap:       DefaultChunkOverlap,
			EmbeddingBatchSize: DefaultEmbeddingBatchSize,
			TopK:               DefaultTopK,
			MaxRetries:         DefaultMaxRetries,
			RetryBackoff:       DefaultRetryBackoff,
		},
		Upload: UploadConfig{
			MaxFileSizeMB: DefaultMaxFileSizeMB,
			MaxFiles:      DefaultMaxFiles,
			AcceptTypes:   []string{"application/pdf"},
			Timeout:       DefaultUploadTimeout,
		},
		Server:   ServerConfig{Addr: DefaultServerAddr},
		Database: DatabaseConfig{Driver: DefaultDatabaseDriver},
		LogLevel: "info",
	}
}

func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"OPENAI_KEY", &cfg.ChatLLM.Key},
		{"OPENAI_BASE_URL", &cfg.ChatLLM.BaseURL},
		{"CHAT_MODEL", &cfg.ChatLLM.Model},
		{"EMBEDDING_PROVIDER", &cfg.EmbedLLM.Provider},
		{"EMBEDDING_BASE_URL", &cfg.EmbedLLM.BaseURL},
		{"HUGGING_FACE_TRANSFORMER", &cfg.EmbedLLM.Model},
		{"SERVER_ADDR", &cfg.Server.Addr},
		{"DATABASE_DSN", &cfg.Database.DSN},
		{"DATABASE_DRIVER", &cfg.Database.Driver},
		{"LOG_LEVEL", &cfg.LogLevel},
	}
	for _, s := range strs {
		if v, ok := lookupEnv(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"UPLOAD_MAX_FILE_SIZE_MB", &cfg.Upload.MaxFileSizeMB},
		{"UPLOAD_MAX_FILES", &cfg.Upload.MaxFiles},
		{"TEXT_SPLITTER_CHUNK_SIZE", &cfg.RAG.ChunkSize},
		{"TEXT_SPLITTER_CHUNK_OVERLAP", &cfg.RAG.ChunkOverlap},
		{"EMBEDDINGS_CHUNK_SIZE", &cfg.RAG.EmbeddingBatchSize},
		{"MAX_RETRIES", &cfg.RAG.MaxRetries},
		{"RETRIEVER_TOP_K", &cfg.RAG.TopK},
	}
	for _, i := range ints {
		v, ok := lookupEnv(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.key, err)
		}
		*i.dst = n
	}

	if v, ok := lookupEnv("TEMPERATURE"); ok {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TEMPERATURE: %w", err)
		}
		cfg.ChatLLM.Temperature = t
	}
	if v, ok := lookupEnv("RETRY_ON_ERROR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RETRY_ON_ERROR: %w", err)
		}
		cfg.RAG.RetryOnError = b
	}
	if v, ok := lookupEnv("UPLOAD_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("UPLOAD_TIMEOUT: %w", err)
		}
		cfg.Upload.Timeout = d
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// zero values left by a partial YAML file fall back to defaults
func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = DefaultChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = min(DefaultChunkOverlap, cfg.RAG.ChunkSize/2)
	}
	if cfg.RAG.EmbeddingBatchSize <= 0 {
		cfg.RAG.EmbeddingBatchSize = DefaultEmbeddingBatchSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if cfg.RAG.MaxRetries <= 0 {
		cfg.RAG.MaxRetries = DefaultMaxRetries
	}
	if cfg.RAG.RetryBackoff <= 0 {
		cfg.RAG.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Upload.MaxFileSizeMB <= 0 {
		cfg.Upload.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	if cfg.Upload.MaxFiles <= 0 {
		cfg.Upload.MaxFiles = DefaultMaxFiles
	}
	if len(cfg.Upload.AcceptTypes) == 0 {
		cfg.Upload.AcceptTypes = []string{"application/pdf"}
	}
	if cfg.Upload.Timeout <= 0 {
		cfg.Upload.Timeout = DefaultUploadTimeout
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = DefaultEmbedProvider
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDatabaseDriver
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = DefaultChatModel
	}
}

// MaxFileSize returns the per-file upload limit in bytes.
func (u UploadConfig) MaxFileSize() int64 {
	return int64(u.MaxFileSizeMB) << 20
}

// Accepts reports whether a declared content type may be uploaded.
func (u UploadConfig) Accepts(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for _, t := range u.AcceptTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}
