// Package search answers free-text queries against the vector index: the
// query string goes through the same embedding model as the corpus, and the
// resulting vector drives a kNN lookup.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/cocosjn/warcvec/internal/encoder"
	"github.com/cocosjn/warcvec/internal/esindex"
)

type knnIndex interface {
	KNNSearch(ctx context.Context, vector []float32, k int) ([]esindex.Hit, error)
}

type Searcher struct {
	enc encoder.Encoder
	idx knnIndex
}

func New(enc encoder.Encoder, idx knnIndex) *Searcher {
	return &Searcher{enc: enc, idx: idx}
}

// Search embeds the query and returns the k nearest documents.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]esindex.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	vectors, err := s.enc.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return s.idx.KNNSearch(ctx, vectors[0], k)
}
