package llmservice

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"document-qa/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var thinkTag = regexp.MustCompile(`(?s)<think>.*?</think>`)

var ErrEmptyResponse = errors.New("model returned no choices")

// NewChatModel creates the OpenAI-compatible chat model that answers questions.
func NewChatModel(llmConfig *config.LLMConfig) (*openai.LLM, error) {
	log.Debug().Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating chat model")
	opts := []openai.Option{openai.WithModel(llmConfig.Model)}
	if llmConfig.Key != "" {
		opts = append(opts, openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")))
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	return openai.New(opts...)
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	res, err := llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(thinkTag.ReplaceAllString(res.Choices[0].Content, "")), nil
}
