package encoder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoderServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/encode", r.URL.Path)

		var req encodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := encodeResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			resp.Embeddings[i] = vec
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestEncodeRoundtrip(t *testing.T) {
	srv := encoderServer(t, 4)
	defer srv.Close()

	enc := NewHTTPEncoder(srv.URL, 4)
	out, err := enc.Encode(context.Background(), []string{"bonjour", "le monde"})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(2), out[1][0])
	assert.Len(t, out[0], 4)
}

func TestEncodeEmptyInput(t *testing.T) {
	enc := NewHTTPEncoder("http://localhost:1", 4)
	out, err := enc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEncodeDimsMismatch(t *testing.T) {
	srv := encoderServer(t, 3)
	defer srv.Close()

	enc := NewHTTPEncoder(srv.URL, 4)
	_, err := enc.Encode(context.Background(), []string{"bonjour"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dims")
}

func TestEncodeCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(encodeResponse{Embeddings: [][]float32{{1, 0, 0, 0}}})
	}))
	defer srv.Close()

	enc := NewHTTPEncoder(srv.URL, 4)
	_, err := enc.Encode(context.Background(), []string{"un", "deux"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 embeddings for 2 texts")
}

func TestEncodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	enc := NewHTTPEncoder(srv.URL, 4)
	_, err := enc.Encode(context.Background(), []string{"bonjour"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWarmup(t *testing.T) {
	srv := encoderServer(t, 4)
	defer srv.Close()

	enc := NewHTTPEncoder(srv.URL, 4)
	require.NoError(t, enc.Warmup(context.Background()))
}
