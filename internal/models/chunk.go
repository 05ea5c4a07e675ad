package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UploadedFile is a file received from the user, held in memory only while it is ingested.
type UploadedFile struct {
	Name        string
	Content     []byte
	ContentType string
}

// Extension returns the declared extension, lower-cased and without the dot.
func (f UploadedFile) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
}

// SourceTag returns the citation tag of the chunk at position i.
func SourceTag(i int) string {
	return fmt.Sprintf("%d-pl", i)
}

// Corpus is every chunk of one session in upload order, with Tags[i] naming Chunks[i].
type Corpus struct {
	Chunks []string
	Tags   []string
	index  map[string]int
}

// NewCorpus tags chunks by their position in the combined sequence.
func NewCorpus(chunks []string) *Corpus {
	c := &Corpus{
		Chunks: chunks,
		Tags:   make([]string, len(chunks)),
		index:  make(map[string]int, len(chunks)),
	}
	for i := range chunks {
		tag := SourceTag(i)
		c.Tags[i] = tag
		c.index[tag] = i
	}
	return c
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Chunks)
}

// Lookup returns the chunk text for an exact tag match.
func (c *Corpus) Lookup(tag string) (string, bool) {
	if c == nil {
		return "", false
	}
	i, ok := c.index[tag]
	if !ok {
		return "", false
	}
	return c.Chunks[i], true
}
