package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/config"
	"document-qa/internal/testutil"
)

func TestGenerateContentStripsThinkTags(t *testing.T) {
	model := &testutil.ChatModel{Replies: []testutil.Reply{
		{Text: "<think>\nweighing the context\n</think>\nThe answer is foo\nSOURCES: 0-pl"},
	}}

	out, err := GenerateContent(context.Background(), model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "question"),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "The answer is foo\nSOURCES: 0-pl" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestGenerateContentPropagatesErrors(t *testing.T) {
	boom := errors.New("rate limited")
	model := &testutil.ChatModel{Replies: []testutil.Reply{{Err: boom}}}

	if _, err := GenerateContent(context.Background(), model, nil); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestNewChatModel(t *testing.T) {
	llm, err := NewChatModel(&config.LLMConfig{Key: "sk-test", Model: "gpt-3.5-turbo"})
	if err != nil {
		t.Fatalf("new chat model: %v", err)
	}
	if llm == nil {
		t.Fatal("expected model")
	}
}
