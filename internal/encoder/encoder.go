// Package encoder talks to the sentence-embedding sidecar. The model itself
// (device selection, TF32, compilation) lives behind the sidecar's HTTP API;
// this package only sees batches of strings going in and float32 vectors
// coming out.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Encoder produces one dense vector per input text.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

type encodeRequest struct {
	Texts []string `json:"texts"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPEncoder is the production Encoder. It posts text batches to the
// sidecar's /encode endpoint and validates the returned dimensionality.
type HTTPEncoder struct {
	baseURL string
	dims    int
	client  *http.Client
}

func NewHTTPEncoder(baseURL string, dims int) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: baseURL,
		dims:    dims,
		client: &http.Client{
			// Large batches on a cold model can take a while.
			Timeout: 300 * time.Second,
		},
	}
}

func (e *HTTPEncoder) Dims() int { return e.dims }

// Warmup runs one dummy forward pass so model compilation and caches are
// paid for at startup, not on the first real batch.
func (e *HTTPEncoder) Warmup(ctx context.Context) error {
	_, err := e.Encode(ctx, []string{"bonjour"})
	if err != nil {
		return fmt.Errorf("encoder warmup: %w", err)
	}
	return nil
}

func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(encodeRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send encode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("encoder returned %d: %s", resp.StatusCode, msg)
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode encode response: %w", err)
	}

	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d embeddings for %d texts", len(out.Embeddings), len(texts))
	}
	for i, emb := range out.Embeddings {
		if len(emb) != e.dims {
			return nil, fmt.Errorf("embedding %d has %d dims, want %d", i, len(emb), e.dims)
		}
	}

	return out.Embeddings, nil
}
