// Package vectorstore indexes knowledge base documents by embedding and answers similarity queries.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotBuilt    = errors.New("vector store has not been built")
	ErrNoDocuments = errors.New("no documents to index")
)

type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type Result struct {
	Document
	Score float64 `json:"score"`
}

// Store is a persisted similarity index.
type Store interface {
	Name() string
	// Exists reports whether a persisted index is present.
	Exists(ctx context.Context) (bool, error)
	Build(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, k int) ([]Result, error)
	Reset(ctx context.Context) error
}

// Status says how OpenOrBuild obtained the index.
type Status string

const (
	StatusLoaded Status = "loaded"
	StatusBuilt  Status = "built"
	StatusEmpty  Status = "empty"
)

// DocumentsFunc produces the documents to index.
type DocumentsFunc func() ([]Document, error)

// OpenOrBuild uses the persisted index when present and builds it from docs otherwise.
func OpenOrBuild(ctx context.Context, store Store, docs DocumentsFunc) (Status, error) {
	exists, err := store.Exists(ctx)
	if err != nil {
		return "", fmt.Errorf("check index %s: %w", store.Name(), err)
	}
	if exists {
		return StatusLoaded, nil
	}
	return build(ctx, store, docs)
}

// Rebuild drops the persisted index and builds it again.
func Rebuild(ctx context.Context, store Store, docs DocumentsFunc) (Status, error) {
	if err := store.Reset(ctx); err != nil {
		return "", fmt.Errorf("reset index %s: %w", store.Name(), err)
	}
	return build(ctx, store, docs)
}

func build(ctx context.Context, store Store, docs DocumentsFunc) (Status, error) {
	documents, err := docs()
	if err != nil {
		return "", err
	}
	if len(documents) == 0 {
		return StatusEmpty, nil
	}
	if err := store.Build(ctx, documents); err != nil {
		return "", err
	}
	return StatusBuilt, nil
}
