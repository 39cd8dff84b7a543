package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/llm"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticStore keeps documents in an Elasticsearch index with a dense_vector field.
type ElasticStore struct {
	index    string
	es       *elasticsearch.Client
	embedder llm.Embedder
}

type elasticDoc struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding,omitempty"`
}

func NewElasticStore(index string, es *elasticsearch.Client, embedder llm.Embedder) *ElasticStore {
	return &ElasticStore{index: index, es: es, embedder: embedder}
}

func (s *ElasticStore) Name() string { return s.index }

// Exists is true when the index exists and holds at least one document.
func (s *ElasticStore) Exists(ctx context.Context) (bool, error) {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("index exists check failed: %s", res.Status())
	}

	count, err := s.es.Count(s.es.Count.WithIndex(s.index), s.es.Count.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer count.Body.Close()
	if count.IsError() {
		return false, fmt.Errorf("count failed: %s", count.String())
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(count.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Count > 0, nil
}

func (s *ElasticStore) Build(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return apperrors.NewIndexBuildFailedError(s.index, err)
	}

	if err := s.createIndex(ctx, len(vectors[0])); err != nil {
		return apperrors.NewIndexBuildFailedError(s.index, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, d := range docs {
		if err := enc.Encode(map[string]interface{}{"index": map[string]string{"_id": d.ID}}); err != nil {
			return apperrors.NewIndexBuildFailedError(s.index, err)
		}
		if err := enc.Encode(elasticDoc{ID: d.ID, Content: d.Content, Metadata: d.Metadata, Embedding: vectors[i]}); err != nil {
			return apperrors.NewIndexBuildFailedError(s.index, err)
		}
	}

	res, err := s.es.Bulk(&buf,
		s.es.Bulk.WithIndex(s.index),
		s.es.Bulk.WithRefresh("true"),
		s.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return apperrors.NewIndexBuildFailedError(s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewIndexBuildFailedError(s.index, fmt.Errorf("bulk request failed: %s", res.String()))
	}

	var bulk struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return apperrors.NewIndexBuildFailedError(s.index, err)
	}
	if bulk.Errors {
		return apperrors.NewIndexBuildFailedError(s.index, fmt.Errorf("bulk indexing reported item errors"))
	}
	return nil
}

func (s *ElasticStore) createIndex(ctx context.Context, dims int) error {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":       map[string]interface{}{"type": "keyword"},
				"content":  map[string]interface{}{"type": "text"},
				"metadata": map[string]interface{}{"type": "flattened"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index failed: %s", res.String())
	}
	return nil
}

func (s *ElasticStore) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.index, err)
	}

	numCandidates := k * 10
	if numCandidates < 50 {
		numCandidates = 50
	}
	body, err := json.Marshal(map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vectors[0],
			"k":              k,
			"num_candidates": numCandidates,
		},
		"_source": []string{"id", "content", "metadata"},
		"size":    k,
	})
	if err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.index, err)
	}

	res, err := s.es.Search(
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotBuilt
	}
	if res.IsError() {
		return nil, apperrors.NewIndexQueryFailedError(s.index, fmt.Errorf("search failed: %s", res.String()))
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Score  float64    `json:"_score"`
				Source elasticDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewIndexQueryFailedError(s.index, err)
	}

	results := make([]Result, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		results = append(results, Result{
			Document: Document{ID: hit.Source.ID, Content: hit.Source.Content, Metadata: hit.Source.Metadata},
			Score:    hit.Score,
		})
	}
	return results, nil
}

func (s *ElasticStore) Reset(ctx context.Context) error {
	res, err := s.es.Indices.Delete([]string{s.index},
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
		s.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index failed: %s", res.String())
	}
	return nil
}
