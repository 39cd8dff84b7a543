package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"shopping-agent/internal/common/config"
	apperrors "shopping-agent/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps texts onto fixed axes so similarity is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var axes = []string{"amazon", "costco", "electronics", "clothing"}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(axes))
		lower := strings.ToLower(t)
		for j, a := range axes {
			if strings.Contains(lower, a) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func testDocs() []Document {
	return []Document{
		{ID: "1", Content: "Retailer: Amazon electronics", Metadata: map[string]string{"retailer": "amazon"}},
		{ID: "2", Content: "Retailer: Costco", Metadata: map[string]string{"retailer": "costco"}},
		{ID: "3", Content: "Product Category: Clothing", Metadata: map[string]string{"source": "category_guidance"}},
	}
}

func docsFunc(docs []Document) DocumentsFunc {
	return func() ([]Document, error) { return docs, nil }
}

// ==========================
// FileStore
// ==========================

func TestFileStore_BuildAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	emb := &keywordEmbedder{}
	store := NewFileStore("cashback_rates", dir, emb)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := OpenOrBuild(context.Background(), store, docsFunc(testDocs()))
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, status)

	results, err := store.Search(context.Background(), "cashback rate for Costco", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	// a fresh store reads the persisted file without re-embedding documents
	reopened := NewFileStore("cashback_rates", dir, emb)
	status, err = OpenOrBuild(context.Background(), reopened, func() ([]Document, error) {
		t.Fatal("documents should not be rebuilt")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, status)

	results, err = reopened.Search(context.Background(), "amazon", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "amazon", results[0].Metadata["retailer"])
}

func TestFileStore_SearchBeforeBuild(t *testing.T) {
	store := NewFileStore("c", filepath.Join(t.TempDir(), "missing"), &keywordEmbedder{})
	_, err := store.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestFileStore_EmbedFailure(t *testing.T) {
	store := NewFileStore("c", t.TempDir(), &keywordEmbedder{err: errors.New("quota")})
	err := store.Build(context.Background(), testDocs())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexBuildFailed))
}

func TestFileStore_InterruptedBuildIsRebuilt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json.tmp"), []byte(`{"collection":`), 0o644))
	store := NewFileStore("c", dir, &keywordEmbedder{})

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := OpenOrBuild(context.Background(), store, docsFunc(testDocs()))
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, status)

	results, err := store.Search(context.Background(), "costco", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].ID)

	_, err = os.Stat(filepath.Join(dir, "index.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestRebuild_ResetsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	store := NewFileStore("c", dir, &keywordEmbedder{})
	_, err := OpenOrBuild(context.Background(), store, docsFunc(testDocs()))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.bin"), []byte("x"), 0o644))

	status, err := Rebuild(context.Background(), store, docsFunc(testDocs()[:1]))
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, status)

	_, err = os.Stat(filepath.Join(dir, "stale.bin"))
	assert.True(t, os.IsNotExist(err))

	results, err := store.Search(context.Background(), "amazon", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestOpenOrBuild_NoDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	store := NewFileStore("c", dir, &keywordEmbedder{})
	status, err := OpenOrBuild(context.Background(), store, docsFunc(nil))
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, status)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 0}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
}

// ==========================
// ElasticStore
// ==========================

type fakeElastic struct {
	mu       sync.Mutex
	exists   bool
	docs     int
	mapping  map[string]interface{}
	bulk     []string
	searches []map[string]interface{}
	deleted  bool
}

func (f *fakeElastic) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)

		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/shopping_cashback_rates":
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.URL.Path == "/shopping_cashback_rates/_count":
			_, _ = w.Write([]byte(`{"count":` + strconv.Itoa(f.docs) + `}`))
		case r.Method == http.MethodPut && r.URL.Path == "/shopping_cashback_rates":
			assert.NoError(t, json.Unmarshal(body, &f.mapping))
			f.exists = true
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			lines := strings.Split(strings.TrimSpace(string(body)), "\n")
			f.bulk = lines
			f.docs = len(lines) / 2
			_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
		case strings.HasSuffix(r.URL.Path, "/_search"):
			var q map[string]interface{}
			assert.NoError(t, json.Unmarshal(body, &q))
			f.searches = append(f.searches, q)
			_, _ = w.Write([]byte(`{"hits":{"hits":[
				{"_score":0.97,"_source":{"id":"2","content":"Retailer: Costco","metadata":{"retailer":"costco"}}},
				{"_score":0.51,"_source":{"id":"1","content":"Retailer: Amazon electronics","metadata":{"retailer":"amazon"}}}
			]}}`))
		case r.Method == http.MethodDelete:
			f.deleted = true
			f.exists = false
			f.docs = 0
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func newElasticStore(t *testing.T, fake *fakeElastic) Store {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	store, err := New(config.KnowledgeConfig{VectorBackend: BackendElasticsearch, IndexPrefix: "shopping"},
		"cashback_rates", "", es, &keywordEmbedder{})
	require.NoError(t, err)
	return store
}

func TestElasticStore_BuildAndSearch(t *testing.T) {
	fake := &fakeElastic{}
	store := newElasticStore(t, fake)
	assert.Equal(t, "shopping_cashback_rates", store.Name())

	status, err := OpenOrBuild(context.Background(), store, docsFunc(testDocs()))
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, status)

	props := fake.mapping["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	embedding := props["embedding"].(map[string]interface{})
	assert.Equal(t, "dense_vector", embedding["type"])
	assert.EqualValues(t, len(axes), embedding["dims"])
	assert.Len(t, fake.bulk, 6)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	results, err := store.Search(context.Background(), "costco", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "costco", results[0].Metadata["retailer"])
	assert.InDelta(t, 0.97, results[0].Score, 1e-9)

	knn := fake.searches[0]["knn"].(map[string]interface{})
	assert.Equal(t, "embedding", knn["field"])
	assert.EqualValues(t, 2, knn["k"])
	assert.EqualValues(t, 50, knn["num_candidates"])
}

func TestElasticStore_ExistsButEmpty(t *testing.T) {
	fake := &fakeElastic{exists: true}
	store := newElasticStore(t, fake)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestElasticStore_Reset(t *testing.T) {
	fake := &fakeElastic{exists: true, docs: 3}
	store := newElasticStore(t, fake)

	require.NoError(t, store.Reset(context.Background()))
	assert.True(t, fake.deleted)
}

func TestNew_Backends(t *testing.T) {
	store, err := New(config.KnowledgeConfig{}, "c", t.TempDir(), nil, &keywordEmbedder{})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(config.KnowledgeConfig{VectorBackend: BackendElasticsearch}, "c", "", nil, &keywordEmbedder{})
	assert.Error(t, err)

	_, err = New(config.KnowledgeConfig{VectorBackend: "chroma"}, "c", "", nil, &keywordEmbedder{})
	assert.Error(t, err)
}
