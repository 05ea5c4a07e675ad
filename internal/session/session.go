package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chromemdb"
	"document-qa/internal/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrUploadExpired    = errors.New("upload wait timed out")
	ErrAlreadyProcessed = errors.New("files already uploaded for this session")
	ErrNotReady         = errors.New("session has no processed files yet")
	ErrNoFiles          = errors.New("no files uploaded")
	ErrTooManyFiles     = errors.New("too many files")
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnsupportedType  = errors.New("unsupported file type")
)

// FallbackAnswer is sent when every attempt to answer failed.
const FallbackAnswer = "Sorry, I could not answer your question right now. Please try again."

// Phase is where a session is in its lifecycle.
type Phase int

const (
	PhasePending Phase = iota
	PhaseProcessing
	PhaseReady
	PhaseFailed
)

// State tracks the handling of the latest question.
type State int

const (
	StateIdle State = iota
	StateAnswering
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnswering:
		return "answering"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Answerer is the retrieval-answering chain bound to a session.
type Answerer interface {
	Call(ctx context.Context, question string) (models.Answer, error)
}

// Recorder persists transcript messages. Failures are logged and never reach the user.
type Recorder interface {
	RecordMessage(ctx context.Context, sessionID string, msg models.Message) error
}

// Session binds one corpus, its index and its chain to one user connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	// asking serializes questions; mu guards the fields below and is never held across model calls
	asking sync.Mutex

	mu         sync.Mutex
	phase      Phase
	state      State
	files      []string
	corpus     *models.Corpus
	index      *chromemdb.VectorDBManager
	chain      Answerer
	transcript []models.Message
	retry      RetryPolicy
	recorder   Recorder
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Corpus() *models.Corpus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corpus
}

func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Transcript returns a copy of the messages exchanged so far.
func (s *Session) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.transcript...)
}

// Ask answers one question. Chain failures produce a fallback message from the Error author
// rather than an error; an error is returned only when the session cannot answer at all.
// Questions on one session are answered one at a time; the model call runs without holding the
// state lock, so Phase, Transcript and the manager stay responsive meanwhile.
func (s *Session) Ask(ctx context.Context, question string) (models.Message, error) {
	s.asking.Lock()
	defer s.asking.Unlock()

	s.mu.Lock()
	if s.phase != PhaseReady {
		s.mu.Unlock()
		return models.Message{}, ErrNotReady
	}
	chain, corpus := s.chain, s.corpus
	s.state = StateAnswering
	s.mu.Unlock()
	s.append(ctx, models.Message{Author: models.AuthorUser, Content: question})

	var answer models.Answer
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		answer, err = chain.Call(ctx, question)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Str("question", question).Msg("Failed to answer question")
		reply := models.Message{Author: models.AuthorError, Content: FallbackAnswer}
		s.finish(ctx, StateFailed, reply)
		return reply, nil
	}

	content, elements := ResolveSources(answer.Answer, answer.Sources, corpus)
	reply := models.Message{Author: models.AuthorChatbot, Content: content, Elements: elements}
	s.finish(ctx, StateResolved, reply)
	return reply, nil
}

func (s *Session) finish(ctx context.Context, state State, reply models.Message) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.append(ctx, reply)
}

// append adds msg to the transcript and records it outside the state lock.
func (s *Session) append(ctx context.Context, msg models.Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
	s.record(ctx, msg)
}

func (s *Session) record(ctx context.Context, msg models.Message) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordMessage(ctx, s.ID, msg); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Failed to record message")
	}
}

// ResolveSources matches the model's comma-separated source tokens against the corpus tags.
// Matches are cited in the answer and returned as excerpts; unmatched tokens are dropped.
func ResolveSources(answer, sources string, corpus *models.Corpus) (string, []models.SourceElement) {
	sources = strings.TrimSpace(sources)
	if sources == "" {
		return answer, nil
	}

	var (
		found    []string
		elements []models.SourceElement
	)
	for _, token := range strings.Split(sources, ",") {
		name := strings.ReplaceAll(strings.TrimSpace(token), ".", "")
		text, ok := corpus.Lookup(name)
		if !ok {
			continue
		}
		found = append(found, name)
		elements = append(elements, models.SourceElement{Name: name, Content: text})
	}

	if len(found) == 0 {
		return answer + "\nNo sources found", nil
	}
	return answer + "\nSources: " + strings.Join(found, ", "), elements
}

// UploadPrompt asks the user for files.
func UploadPrompt(maxFiles int) string {
	return fmt.Sprintf("Please upload up to %d `.pdf` files to begin.", maxFiles)
}

func ProcessingMessage(names []string) string {
	return fmt.Sprintf("Processing %s...", quoteNames(names))
}

func ReadyMessage(names []string) string {
	if len(names) == 1 {
		return fmt.Sprintf("`%s` processed. You can now ask questions!", names[0])
	}
	return fmt.Sprintf("%s processed. You can now ask questions.", quoteNames(names))
}

func quoteNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}
