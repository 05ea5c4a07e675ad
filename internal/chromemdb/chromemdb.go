package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/models"
)

// Document is one retrieved chunk with its citation tag.
type Document struct {
	Tag        string
	Content    string
	Similarity float32
}

// VectorDBManager wraps the in-memory chromem-go collection built for one session.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
}

type Options struct {
	CollectionName string
	BatchSize      int
}

const defaultCollectionName = "corpus"

// NewVectorDBManager initializes an empty in-memory collection that embeds queries with embedder.
func NewVectorDBManager(collectionName string, embedder embeddings.Embedder) (*VectorDBManager, error) {
	if collectionName == "" {
		collectionName = defaultCollectionName
	}
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, nil, chromem.EmbeddingFunc(embedder.EmbedQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &VectorDBManager{db: db, collection: c, embedder: embedder}, nil
}

// BuildIndex embeds every chunk of the corpus and stores it under its source tag. Any failure
// discards the whole index.
func BuildIndex(ctx context.Context, embedder embeddings.Embedder, corpus *models.Corpus, opts Options) (*VectorDBManager, error) {
	m, err := NewVectorDBManager(opts.CollectionName, embedder)
	if err != nil {
		return nil, err
	}
	if corpus.Len() == 0 {
		log.Warn().Msg("Empty corpus, index has no documents")
		return m, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = corpus.Len()
	}

	docs := make([]chromem.Document, 0, corpus.Len())
	for start := 0; start < corpus.Len(); start += batchSize {
		end := min(start+batchSize, corpus.Len())
		vectors, err := embedder.EmbedDocuments(ctx, corpus.Chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), end-start)
		}
		for i, v := range vectors {
			tag := corpus.Tags[start+i]
			docs = append(docs, chromem.Document{
				ID:        tag,
				Content:   corpus.Chunks[start+i],
				Metadata:  map[string]string{models.SourceMetadataKey: tag},
				Embedding: v,
			})
		}
		log.Debug().Int("from", start).Int("to", end-1).Msg("Embedded chunk batch")
	}

	if err := m.CreateDocs(ctx, docs); err != nil {
		return nil, err
	}
	log.Info().Int("documents", m.Count()).Msg("Built vector index")
	return m, nil
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Search returns up to topK chunks most similar to query, best first.
func (m *VectorDBManager) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	n := min(topK, m.Count())
	if n <= 0 {
		return nil, nil
	}

	queryEmbedding, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       n,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{
			Tag:        r.Metadata[models.SourceMetadataKey],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return docs, nil
}

func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}
