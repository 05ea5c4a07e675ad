package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

// Manager owns every live session. Sessions share nothing but the read-only configuration and
// the model clients.
type Manager struct {
	cfg      *config.Config
	embedder embeddings.Embedder
	llm      llms.Model
	recorder Recorder
	extract  func(models.UploadedFile) (string, error)
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg *config.Config, embedder embeddings.Embedder, llm llms.Model, recorder Recorder) *Manager {
	return &Manager{
		cfg:      cfg,
		embedder: embedder,
		llm:      llm,
		recorder: recorder,
		extract:  parser.ExtractText,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session that waits for its upload.
func (m *Manager) Start() (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:        id,
		CreatedAt: m.now(),
		phase:     PhasePending,
		recorder:  m.recorder,
		retry: RetryPolicy{
			MaxRetries:   m.cfg.RAG.MaxRetries,
			RetryOnError: m.cfg.RAG.RetryOnError,
			Backoff:      m.cfg.RAG.RetryBackoff,
		},
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	log.Info().Str("session", id).Msg("Session started")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End discards a session and everything it holds.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	log.Info().Str("session", id).Msg("Session ended")
	return true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Upload validates the files against the upload limits and accepted types, then processes them.
// It returns the ready message shown to the user.
func (m *Manager) Upload(ctx context.Context, id string, files []models.UploadedFile) (string, error) {
	for _, f := range files {
		if !m.cfg.Upload.Accepts(f.ContentType) {
			return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, f.Name, f.ContentType)
		}
	}
	return m.process(ctx, id, files)
}

// Process starts a session and ingests files without the content-type restriction of Upload.
func (m *Manager) Process(ctx context.Context, files []models.UploadedFile) (*Session, error) {
	s, err := m.Start()
	if err != nil {
		return nil, err
	}
	if _, err := m.process(ctx, s.ID, files); err != nil {
		m.End(s.ID)
		return nil, err
	}
	return s, nil
}

func (m *Manager) process(ctx context.Context, id string, files []models.UploadedFile) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	if err := m.checkLimits(files); err != nil {
		return "", err
	}

	s.mu.Lock()
	switch {
	case s.phase != PhasePending:
		s.mu.Unlock()
		return "", ErrAlreadyProcessed
	case m.expired(s):
		s.phase = PhaseFailed
		s.mu.Unlock()
		m.End(id)
		return "", ErrUploadExpired
	}
	s.phase = PhaseProcessing
	s.mu.Unlock()

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	log.Info().Str("session", id).Strs("files", names).Msg(ProcessingMessage(names))

	corpus, index, err := m.build(ctx, id, files)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseFailed
		s.mu.Unlock()
		log.Error().Err(err).Str("session", id).Msg("Failed to process files")
		return "", err
	}

	ready := ReadyMessage(names)
	readyMsg := models.Message{Author: models.AuthorChatbot, Content: ready}
	s.mu.Lock()
	s.files = names
	s.corpus = corpus
	s.index = index
	s.chain = rag.NewChain(m.llm, index, rag.Options{
		TopK:        m.cfg.RAG.TopK,
		Temperature: m.cfg.ChatLLM.Temperature,
	})
	// the ready message lands before any question can be asked
	s.transcript = append(s.transcript, readyMsg)
	s.phase = PhaseReady
	s.mu.Unlock()
	s.record(ctx, readyMsg)

	log.Info().Str("session", id).Int("chunks", corpus.Len()).Msg("Session ready")
	return ready, nil
}

func (m *Manager) checkLimits(files []models.UploadedFile) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > m.cfg.Upload.MaxFiles {
		return fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), m.cfg.Upload.MaxFiles)
	}
	for _, f := range files {
		if int64(len(f.Content)) > m.cfg.Upload.MaxFileSize() {
			return fmt.Errorf("%w: %s exceeds %d MB", ErrFileTooLarge, f.Name, m.cfg.Upload.MaxFileSizeMB)
		}
	}
	return nil
}

// build runs ingest, chunk and index over the files as one combined sequence.
func (m *Manager) build(ctx context.Context, id string, files []models.UploadedFile) (*models.Corpus, *chromemdb.VectorDBManager, error) {
	var all []string
	for _, f := range files {
		text, err := m.extract(f)
		if err != nil {
			return nil, nil, err
		}
		chunks, err := parser.SplitText(text, m.cfg.RAG.ChunkSize, m.cfg.RAG.ChunkOverlap)
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("file", f.Name).Int("chunks", len(chunks)).Msg("Chunked file")
		all = append(all, chunks...)
	}

	corpus := models.NewCorpus(all)
	index, err := chromemdb.BuildIndex(ctx, m.embedder, corpus, chromemdb.Options{
		CollectionName: id,
		BatchSize:      m.cfg.RAG.EmbeddingBatchSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return corpus, index, nil
}

func (m *Manager) expired(s *Session) bool {
	return m.now().Sub(s.CreatedAt) > m.cfg.Upload.Timeout
}

// Sweep drops pending sessions whose upload wait has timed out. Session locks are only taken
// after the manager lock is released.
func (m *Manager) Sweep() int {
	m.mu.RLock()
	candidates := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		candidates[id] = s
	}
	m.mu.RUnlock()

	var stale []string
	for id, s := range candidates {
		if s.Phase() == PhasePending && m.expired(s) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range stale {
		s := candidates[id]
		if m.sessions[id] != s || s.Phase() != PhasePending {
			continue
		}
		delete(m.sessions, id)
		n++
		log.Warn().Str("session", id).Msg("Upload wait timed out, session dropped")
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
