package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/session"
)

//go:embed index.html
var indexHTML []byte

// Server exposes the chat workflow over HTTP: start a session, upload files once, ask questions.
type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	markdown goldmark.Markdown
	handler  http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

type uploadResponse struct {
	Processing string `json:"processing"`
	Message    string `json:"message"`
	Chunks     int    `json:"chunks"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	Author   string                 `json:"author"`
	Content  string                 `json:"content"`
	HTML     string                 `json:"html"`
	Elements []models.SourceElement `json:"elements"`
}

func New(cfg *config.Config, sessions *session.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleStart)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEnd)
	mux.HandleFunc("POST /v1/sessions/{id}/files", s.handleUpload)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleTranscript)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Start()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionResponse{
		ID:     sess.ID,
		Prompt: session.UploadPrompt(s.cfg.Upload.MaxFiles),
	})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.End(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := s.cfg.Upload.MaxFileSize()*int64(s.cfg.Upload.MaxFiles) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]models.UploadedFile, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		files = append(files, models.UploadedFile{
			Name:        fh.Filename,
			Content:     data,
			ContentType: fh.Header.Get("Content-Type"),
		})
		names = append(names, fh.Filename)
	}

	ready, err := s.sessions.Upload(r.Context(), id, files)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{
		Processing: session.ProcessingMessage(names),
		Message:    ready,
		Chunks:     sess.Corpus().Len(),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}

	reply, err := sess.Ask(r.Context(), req.Content)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.render(reply))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	transcript := sess.Transcript()
	out := make([]messageResponse, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, s.render(m))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) render(m models.Message) messageResponse {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(m.Content), &buf); err != nil {
		log.Warn().Err(err).Msg("Failed to render markdown")
		buf.Reset()
	}
	elements := m.Elements
	if elements == nil {
		elements = []models.SourceElement{}
	}
	return messageResponse{
		Author:   m.Author,
		Content:  m.Content,
		HTML:     buf.String(),
		Elements: elements,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUploadExpired):
		return http.StatusGone
	case errors.Is(err, session.ErrAlreadyProcessed), errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrTooManyFiles), errors.Is(err, session.ErrNoFiles):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
