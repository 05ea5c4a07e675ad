package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"document-qa/internal/models"
)

type fakeSession struct {
	reply     models.Message
	err       error
	questions []string
}

func (f *fakeSession) Ask(ctx context.Context, question string) (models.Message, error) {
	f.questions = append(f.questions, question)
	return f.reply, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func TestAskRendersReplyWithSources(t *testing.T) {
	fs := &fakeSession{reply: models.Message{
		Author:   models.AuthorChatbot,
		Content:  "Paris.\nSources: 0-pl",
		Elements: []models.SourceElement{{Name: "0-pl", Content: "Paris is the capital of France."}},
	}}
	m := sized(t, New(context.Background(), fs, "`atlas.pdf` processed.", nil))

	m.input.SetValue("  capital of France?  ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected a command for the pending question")
	}
	if !m.waiting || m.status != "Thinking..." {
		t.Fatalf("expected waiting state, got waiting=%v status=%q", m.waiting, m.status)
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input to be cleared, got %q", m.input.Value())
	}

	next, _ = m.Update(cmd())
	m = next.(Model)
	if len(fs.questions) != 1 || fs.questions[0] != "capital of France?" {
		t.Fatalf("unexpected questions %v", fs.questions)
	}
	if m.waiting || len(m.messages) != 2 {
		t.Fatalf("expected question and reply, got %d messages", len(m.messages))
	}

	out := renderTranscript(m.messages, 80)
	for _, want := range []string{"capital of France?", "Sources: 0-pl", "[0-pl] Paris is the capital"} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestAskErrorShowsStatus(t *testing.T) {
	fs := &fakeSession{err: errors.New("session has no processed files yet")}
	m := sized(t, New(context.Background(), fs, "", nil))

	m.input.SetValue("hello")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)
	if !strings.HasPrefix(m.status, "Error: ") {
		t.Fatalf("expected error status, got %q", m.status)
	}
}

func TestEnterIgnoredWhileWaitingOrBlank(t *testing.T) {
	fs := &fakeSession{}
	m := sized(t, New(context.Background(), fs, "", nil))

	m.input.SetValue("   ")
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("blank question must not be sent")
	}

	m.waiting = true
	m.input.SetValue("again")
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("question must not be sent while another is pending")
	}
}

func TestExcerptTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerpt(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != excerptLimit+3 {
		t.Fatalf("unexpected excerpt length %d", len([]rune(got)))
	}
	if excerpt("short\n text") != "short text" {
		t.Fatalf("expected whitespace to be collapsed, got %q", excerpt("short\n text"))
	}
}
