// Package esindex wraps the Elasticsearch vector index: mapping creation,
// bulk inserts from the indexer, and kNN queries from the search API.
package esindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// HNSW parameters for the embedding field. efSearch is applied per query as
// num_candidates; the rest go into the index mapping.
const (
	hnswM              = 16
	hnswEFConstruction = 512
	hnswEFSearch       = 512
)

type Client struct {
	es    *elasticsearch.Client
	index string
	dims  int
	log   *logger.Logger
}

func New(cfg config.ElasticConfig, log *logger.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Hosts})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{es: es, index: cfg.Index, dims: cfg.Dims, log: log}, nil
}

// EnsureIndex creates the index with its kNN mapping if it does not exist.
// An existing index is left as is.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("checking index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("checking index %s: status %d", c.index, res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"url": {"type": "keyword"},
				"h1": {"type": "text"},
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine",
					"index_options": {
						"type": "hnsw",
						"m": %d,
						"ef_construction": %d
					}
				}
			}
		}
	}`, c.dims, hnswM, hnswEFConstruction)

	createRes, err := c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", c.index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		body, _ := io.ReadAll(io.LimitReader(createRes.Body, 4096))
		return fmt.Errorf("creating index %s: %s", c.index, body)
	}

	c.log.Info("Created index %s (dims %d)", c.index, c.dims)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkInsert indexes all documents with a single _bulk request and returns
// the number of actions that were accepted.
func (c *Client) BulkInsert(ctx context.Context, docs []domain.EmbeddingRecord) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	action := []byte(`{"index":{}}` + "\n")

	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		buf.Write(action)
		if err := enc.Encode(domain.IndexDocument{URL: doc.URL, H1: doc.H1, Embedding: doc.Embedding}); err != nil {
			return 0, fmt.Errorf("encoding bulk document %s: %w", doc.URL, err)
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return 0, fmt.Errorf("bulk request: %s", body)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding bulk response: %w", err)
	}

	indexed := len(parsed.Items)
	if parsed.Errors {
		failed := 0
		for _, item := range parsed.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
					if op.Error != nil {
						c.log.Error("Bulk item failed: %s: %s", op.Error.Type, op.Error.Reason)
					}
				}
			}
		}
		indexed -= failed
		return indexed, fmt.Errorf("bulk indexed %d/%d documents", indexed, len(docs))
	}

	return indexed, nil
}

// Hit is one kNN search result.
type Hit struct {
	URL   string  `json:"url"`
	H1    string  `json:"h1"`
	Score float64 `json:"score"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				URL string `json:"url"`
				H1  string `json:"h1"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// KNNSearch returns the k nearest documents to the query vector.
func (c *Client) KNNSearch(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	query := map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": hnswEFSearch,
		},
		"_source": []string{"url", "h1"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("search request: %s", msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{URL: h.Source.URL, H1: h.Source.H1, Score: h.Score})
	}
	return hits, nil
}
