package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
)

// Asker is the TUI-facing subset of a ready session.
type Asker interface {
	Ask(ctx context.Context, question string) (models.Message, error)
}

// answerMsg carries the reply of an asynchronous question back to Update.
type answerMsg struct {
	reply models.Message
	err   error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	session  Asker
	input    textinput.Model
	viewport viewport.Model
	messages []models.Message
	summary  string
	status   string
	waiting  bool
	ready    bool
}

// New creates a chat model over a session whose files are already processed. The ready message
// is shown as the first chat bubble.
func New(ctx context.Context, session Asker, summary string, history []models.Message) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: vp,
		messages: append([]models.Message(nil), history...),
		summary:  summary,
		status:   "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.messages = append(m.messages, msg.reply)
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.status = "Thinking..."
			m.messages = append(m.messages, models.Message{Author: models.AuthorUser, Content: q})
			m.refresh()
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.session.Ask(m.ctx, question)
		return answerMsg{reply: reply, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document QA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	authorStyles       = map[string]lipgloss.Style{
		models.AuthorUser:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		models.AuthorChatbot: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		models.AuthorError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(2)
)

const excerptLimit = 300

func renderTranscript(messages []models.Message, width int) string {
	if len(messages) == 0 {
		return "No messages yet."
	}
	body := lipgloss.NewStyle().Width(max(10, width-4))
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(authorStyles[msg.Author].Render(msg.Author))
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Content))
		for _, el := range msg.Elements {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Width(max(10, width-4)).Render(fmt.Sprintf("[%s] %s", el.Name, excerpt(el.Content))))
		}
	}
	return b.String()
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= excerptLimit {
		return text
	}
	return string(r[:excerptLimit]) + "..."
}
