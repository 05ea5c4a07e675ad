package chromemdb

import (
	"context"
	"errors"
	"testing"

	"document-qa/internal/models"
	"document-qa/internal/testutil"
)

func TestBuildIndexStoresEveryChunkUnderItsTag(t *testing.T) {
	emb := &testutil.Embedder{}
	corpus := models.NewCorpus([]string{
		"apples and pears grow on trees",
		"zebras live in the savanna",
		"kubernetes schedules pods onto nodes",
	})

	idx, err := BuildIndex(context.Background(), emb, corpus, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if idx.Count() != corpus.Len() {
		t.Fatalf("expected %d documents, got %d", corpus.Len(), idx.Count())
	}
	if emb.Calls != 2 {
		t.Fatalf("expected 2 embedding batches, got %d", emb.Calls)
	}

	docs, err := idx.Search(context.Background(), "zebras in the savanna", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 1 || docs[0].Tag != "1-pl" {
		t.Fatalf("expected 1-pl as best match, got %+v", docs)
	}
	if text, _ := corpus.Lookup(docs[0].Tag); text != docs[0].Content {
		t.Fatalf("tag %s does not point at its chunk", docs[0].Tag)
	}
}

func TestSearchClampsToCollectionSize(t *testing.T) {
	corpus := models.NewCorpus([]string{"one chunk", "two chunk"})
	idx, err := BuildIndex(context.Background(), &testutil.Embedder{}, corpus, Options{})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	docs, err := idx.Search(context.Background(), "chunk", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(docs))
	}
}

func TestBuildIndexEmptyCorpus(t *testing.T) {
	emb := &testutil.Embedder{}
	idx, err := BuildIndex(context.Background(), emb, models.NewCorpus(nil), Options{})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if emb.Calls != 0 {
		t.Fatalf("expected no embedding calls, got %d", emb.Calls)
	}
	docs, err := idx.Search(context.Background(), "anything", 4)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected no results, got %v %v", docs, err)
	}
}

func TestBuildIndexEmbeddingFailureIsFatal(t *testing.T) {
	boom := errors.New("model unavailable")
	emb := &testutil.Embedder{Err: boom}

	idx, err := BuildIndex(context.Background(), emb, models.NewCorpus([]string{"a", "b"}), Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if idx != nil {
		t.Fatal("expected no partial index")
	}
}
