package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"document-qa/internal/api"
	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/session"
	"document-qa/internal/tui"
)

const (
	configFilePath = "./configs/config.yaml"
	sweepInterval  = time.Minute
)

// fileList collects repeated -file flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var files fileList
	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.Var(&files, "file", "Document to load (repeatable)")
	query := flag.String("query", "", "Question to answer once and exit")
	serve := flag.Bool("serve", false, "Serve the chat over HTTP")
	dryRun := flag.Bool("dry-run", false, "Print the chunks and their source tags, do not call any model")
	transcript := flag.String("transcript", "", "Print the stored transcript of a session id and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel)
	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		if len(files) == 0 {
			log.Fatal().Msg("Please provide at least one document using the -file flag")
		}
		if err := printChunks(cfg, files); err != nil {
			log.Fatal().Err(err).Msg("Error chunking documents")
		}
		return
	}

	if *transcript != "" {
		if err := printTranscript(ctx, cfg, *transcript); err != nil {
			log.Fatal().Err(err).Msg("Error reading transcript")
		}
		return
	}

	manager, closeStore := newManager(ctx, cfg)
	defer closeStore()

	switch {
	case *serve:
		if err := runServer(ctx, cfg, manager); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	case len(files) > 0 && *query != "":
		if err := answerOnce(ctx, manager, files, *query); err != nil {
			log.Fatal().Err(err).Msg("Error answering question")
		}
	case len(files) > 0:
		if err := runTUI(ctx, manager, files); err != nil {
			log.Fatal().Err(err).Msg("Error running chat")
		}
	default:
		log.Fatal().Msg("Please provide documents using the -file flag, or start the server with -serve")
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.ChatLLM.Key != "" {
		c.ChatLLM.Key = "***"
	}
	if c.EmbedLLM.Key != "" {
		c.EmbedLLM.Key = "***"
	}
	if c.Database.DSN != "" {
		c.Database.DSN = "***"
	}
	return c
}

// newManager wires the model clients and, when a DSN is configured, the transcript store.
func newManager(ctx context.Context, cfg *config.Config) (*session.Manager, func()) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, cfg.RAG.EmbeddingBatchSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	llm, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}

	if cfg.Database.DSN == "" {
		return session.NewManager(cfg, embedder, llm, nil), func() {}
	}

	dbInstance, err := openStore(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing transcript store")
	}
	store := db.NewTranscriptStore(dbInstance)
	return session.NewManager(cfg, embedder, llm, store), func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing transcript store")
		}
	}
}

func openStore(ctx context.Context, cfg *config.DatabaseConfig) (*bun.DB, error) {
	dbClient, err := db.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	dbInstance := db.NewDB(dbClient, cfg.Debug)
	if err := db.InitDB(ctx, dbInstance); err != nil {
		dbInstance.Close()
		return nil, err
	}
	return dbInstance, nil
}

// printTranscript reads a past session back from the transcript store.
func printTranscript(ctx context.Context, cfg *config.Config, sessionID string) error {
	if cfg.Database.DSN == "" {
		return errors.New("DATABASE_DSN is not set, no transcripts are stored")
	}
	dbInstance, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	store := db.NewTranscriptStore(dbInstance)
	defer store.Close()

	messages, err := store.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	helper.PrettyPrint(os.Stdout, messages)
	return nil
}

func readFiles(paths []string) ([]models.UploadedFile, error) {
	files := make([]models.UploadedFile, 0, len(paths))
	for _, p := range paths {
		if !parser.Supported(filepath.Ext(p)) {
			log.Warn().Str("file", p).Msg("Unsupported file format, it will contribute no text")
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, models.UploadedFile{
			Name:        filepath.Base(p),
			Content:     data,
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
		})
	}
	return files, nil
}

type chunkView struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// printChunks runs ingest and chunking only, so settings can be checked without any model.
func printChunks(cfg *config.Config, paths []string) error {
	files, err := readFiles(paths)
	if err != nil {
		return err
	}
	var all []string
	for _, f := range files {
		text, err := parser.ExtractText(f)
		if err != nil {
			return err
		}
		chunks, err := parser.SplitText(text, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
		if err != nil {
			return err
		}
		all = append(all, chunks...)
	}
	corpus := models.NewCorpus(all)
	views := make([]chunkView, corpus.Len())
	for i := range corpus.Chunks {
		views[i] = chunkView{Source: corpus.Tags[i], Content: corpus.Chunks[i]}
	}
	helper.PrettyPrint(os.Stdout, views)
	log.Info().Int("chunks", corpus.Len()).Msg("Dry run complete")
	return nil
}

func answerOnce(ctx context.Context, manager *session.Manager, paths []string, query string) error {
	files, err := readFiles(paths)
	if err != nil {
		return err
	}
	sess, err := manager.Process(ctx, files)
	if err != nil {
		return err
	}
	defer manager.End(sess.ID)

	reply, err := sess.Ask(ctx, query)
	if err != nil {
		return err
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", reply.Content)

	for _, el := range reply.Elements {
		log.Info().Msgf("Source %s: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>", el.Name)
		fmt.Printf("%s\n\n", el.Content)
	}
	return nil
}

func runTUI(ctx context.Context, manager *session.Manager, paths []string) error {
	files, err := readFiles(paths)
	if err != nil {
		return err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	log.Info().Msg(session.ProcessingMessage(names))

	sess, err := manager.Process(ctx, files)
	if err != nil {
		return err
	}
	defer manager.End(sess.ID)

	summary := fmt.Sprintf("%d chunks from %s", sess.Corpus().Len(), strings.Join(sess.Files(), ", "))
	m := tui.New(ctx, sess, summary, sess.Transcript())
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runServer(ctx context.Context, cfg *config.Config, manager *session.Manager) error {
	go manager.Run(ctx, sweepInterval)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(cfg, manager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
