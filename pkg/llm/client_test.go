package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-go/internal/config"
)

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-model",
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "the answer"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	answer, err := c.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}

func TestGenerate_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "question")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_EmptyChoicesIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	answer, err := c.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Empty(t, answer)
}

type collectingWriter struct {
	chunks []string
}

func (w *collectingWriter) WriteMessage(_ int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func TestStreamGenerate_ForwardsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	writer := &collectingWriter{}
	require.NoError(t, c.StreamGenerate(context.Background(), "question", writer))
	assert.Equal(t, []string{"hel", "lo"}, writer.chunks)
}

func TestStreamGenerate_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.StreamGenerate(context.Background(), "question", &collectingWriter{})
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
