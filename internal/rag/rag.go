package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"document-qa/internal/chromemdb"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
)

// Retriever finds the chunks most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]chromemdb.Document, error)
}

type Options struct {
	TopK        int
	Temperature float64
}

const defaultTopK = 4

// Chain answers questions over one session's index with the stuff strategy: every retrieved
// chunk goes into a single prompt.
type Chain struct {
	llm       llms.Model
	retriever Retriever
	prompt    prompts.PromptTemplate
	opts      Options
}

func NewChain(llm llms.Model, retriever Retriever, opts Options) *Chain {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Chain{
		llm:       llm,
		retriever: retriever,
		prompt:    prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"summaries"}),
		opts:      opts,
	}
}

// Call retrieves context for question, asks the model and parses its answer and sources.
func (c *Chain) Call(ctx context.Context, question string) (models.Answer, error) {
	docs, err := c.retriever.Search(ctx, question, c.opts.TopK)
	if err != nil {
		return models.Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	log.Debug().Int("documents", len(docs)).Msg("Retrieved context")

	system, err := c.prompt.Format(map[string]any{"summaries": Summaries(docs)})
	if err != nil {
		return models.Answer{}, fmt.Errorf("format prompt: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}
	text, err := llmservice.GenerateContent(ctx, c.llm, messages, llms.WithTemperature(c.opts.Temperature))
	if err != nil {
		return models.Answer{}, fmt.Errorf("generate: %w", err)
	}
	return ParseAnswer(text), nil
}

// Summaries renders retrieved chunks as the context block of the prompt.
func Summaries(docs []chromemdb.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf(models.DocumentTemplate, d.Content, d.Tag))
	}
	return strings.Join(parts, models.DocumentSeparator)
}

var sourcesMarker = regexp.MustCompile(models.SourcesMarker)

// ParseAnswer splits model output at the SOURCES marker. Sources is the first line after the
// marker; without a marker the whole text is the answer and sources is empty.
func ParseAnswer(text string) models.Answer {
	loc := sourcesMarker.FindStringIndex(text)
	if loc == nil {
		return models.Answer{Answer: strings.TrimSpace(text)}
	}

	answer := text[:loc[0]]
	rest := text[loc[1]:]
	// a trailing QUESTION: section is not part of the sources
	if next := sourcesMarker.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	sources, _, _ := strings.Cut(strings.TrimLeft(rest, " \t\r\n"), "\n")

	return models.Answer{
		Answer:  strings.TrimSpace(answer),
		Sources: strings.TrimSpace(sources),
	}
}
