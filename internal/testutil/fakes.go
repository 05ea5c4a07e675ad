// Package testutil holds deterministic stand-ins for the embedding and chat models.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Embedder maps text to letter frequencies plus a constant component, so similar wording lands
// close together and no vector is zero.
type Embedder struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func letterVector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 0.1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

var ErrScriptExhausted = errors.New("no scripted reply left")

// Reply is one scripted chat model outcome.
type Reply struct {
	Text string
	Err  error
}

// ChatModel replays scripted replies and records every request.
type ChatModel struct {
	mu       sync.Mutex
	Replies  []Reply
	Requests [][]llms.MessageContent
}

func (m *ChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, messages)
	if len(m.Replies) == 0 {
		return nil, ErrScriptExhausted
	}
	r := m.Replies[0]
	m.Replies = m.Replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.Text}}}, nil
}

func (m *ChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns how many requests reached the model.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Text returns the text parts of a recorded message.
func Text(msg llms.MessageContent) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
