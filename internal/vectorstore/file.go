package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/llm"
)

const (
	indexFileName  = "index.json"
	embedBatchSize = 64
)

type indexedDocument struct {
	Document
	Embedding []float32 `json:"embedding"`
}

type indexFile struct {
	Collection string            `json:"collection"`
	Documents  []indexedDocument `json:"documents"`
}

// FileStore keeps documents and their embeddings in a JSON file under dir.
type FileStore struct {
	collection string
	dir        string
	embedder   llm.Embedder

	mu     sync.RWMutex
	loaded []indexedDocument
}

func NewFileStore(collection, dir string, embedder llm.Embedder) *FileStore {
	return &FileStore{collection: collection, dir: dir, embedder: embedder}
}

func (s *FileStore) Name() string { return s.collection }

// Exists is true once a completed index file is on disk. Leftovers of an
// interrupted build do not count.
func (s *FileStore) Exists(ctx context.Context) (bool, error) {
	info, err := os.Stat(filepath.Join(s.dir, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *FileStore) Build(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	indexed := make([]indexedDocument, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return apperrors.NewIndexBuildFailedError(s.collection, err)
		}
		for i, d := range docs[start:end] {
			indexed = append(indexed, indexedDocument{Document: d, Embedding: vectors[i]})
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperrors.NewIndexBuildFailedError(s.collection, err)
	}
	payload, err := json.Marshal(indexFile{Collection: s.collection, Documents: indexed})
	if err != nil {
		return apperrors.NewIndexBuildFailedError(s.collection, err)
	}
	tmp := filepath.Join(s.dir, indexFileName+".tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		_ = os.Remove(tmp)
		return apperrors.NewIndexBuildFailedError(s.collection, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, indexFileName)); err != nil {
		_ = os.Remove(tmp)
		return apperrors.NewIndexBuildFailedError(s.collection, err)
	}

	s.mu.Lock()
	s.loaded = indexed
	s.mu.Unlock()
	return nil
}

func (s *FileStore) Search(ctx context.Context, query string, k int) ([]Result, error) {
	docs, err := s.documents()
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(docs) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.collection, err)
	}
	q := vectors[0]

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, Result{Document: d.Document, Score: cosine(q, d.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *FileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.loaded = nil
	s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove %s: %w", s.dir, err)
	}
	return nil
}

func (s *FileStore) documents() ([]indexedDocument, error) {
	s.mu.RLock()
	docs := s.loaded
	s.mu.RUnlock()
	if docs != nil {
		return docs, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotBuilt
	}
	if err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.collection, err)
	}

	var file indexFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.collection, err)
	}

	s.mu.Lock()
	s.loaded = file.Documents
	s.mu.Unlock()
	return file.Documents, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
