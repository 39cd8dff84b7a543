package vectorstore

import (
	"fmt"

	"shopping-agent/internal/common/config"
	"shopping-agent/internal/llm"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	BackendFile          = "file"
	BackendElasticsearch = "elasticsearch"
)

// New picks the backend from config. dir is used by the file backend,
// prefix_collection names the Elasticsearch index.
func New(cfg config.KnowledgeConfig, collection, dir string, es *elasticsearch.Client, embedder llm.Embedder) (Store, error) {
	switch cfg.VectorBackend {
	case "", BackendFile:
		return NewFileStore(collection, dir, embedder), nil
	case BackendElasticsearch:
		if es == nil {
			return nil, fmt.Errorf("elasticsearch backend selected but no client configured")
		}
		index := collection
		if cfg.IndexPrefix != "" {
			index = cfg.IndexPrefix + "_" + collection
		}
		return NewElasticStore(index, es, embedder), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}
