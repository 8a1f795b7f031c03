// File: internal/llmclient/ollama_client_test.go
package llmclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupOllamaClient(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, logs := setupTestLogger(t)
	cfg := validOracleConfig()
	cfg.Endpoint = server.URL + "/"
	client, err := NewOllamaClient(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, logs
}

func TestNewOllamaClientValidation(t *testing.T) {
	logger := zap.NewNop()
	cfg := validOracleConfig()
	cfg.Endpoint = ""
	_, err := NewOllamaClient(cfg, logger)
	assert.ErrorContains(t, err, "endpoint is required")

	cfg = validOracleConfig()
	cfg.Model = ""
	_, err = NewOllamaClient(cfg, logger)
	assert.ErrorContains(t, err, "model is required")
}

func TestOllamaGenerate(t *testing.T) {
	var received ollamaGenerateRequest
	client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","response":"{\"index\": 2}","done":true,"eval_count":7}`))
	})

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"index": 2}`, out)

	assert.Equal(t, "llama3.1:8b", received.Model)
	assert.Equal(t, "You are a QA agent.", received.System)
	assert.Equal(t, "Pick an element.", received.Prompt)
	assert.False(t, received.Stream)
	assert.Equal(t, "json", received.Format)
	assert.Equal(t, 0.2, received.Options.Temperature)
	assert.Equal(t, 128, received.Options.NumPredict, "falls back to configured max tokens")
}

func TestOllamaGenerateErrors(t *testing.T) {
	t.Run("API error status", func(t *testing.T) {
		client, logs := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model 'llama3.1:8b' not found"}`))
		})
		_, err := client.Generate(context.Background(), createTestRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "not found")
		assert.Equal(t, 1, logs.FilterMessage("Ollama API returned error status").Len())
	})

	t.Run("empty response", func(t *testing.T) {
		client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":"  ","done":true,"done_reason":"length"}`))
		})
		_, err := client.Generate(context.Background(), createTestRequest())
		assert.ErrorContains(t, err, "empty response")
	})

	t.Run("malformed body", func(t *testing.T) {
		client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
		_, err := client.Generate(context.Background(), createTestRequest())
		assert.ErrorContains(t, err, "failed to decode")
	})

	t.Run("context deadline", func(t *testing.T) {
		release := make(chan struct{})
		client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.Generate(ctx, createTestRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestOllamaPing(t *testing.T) {
	t.Run("model present", func(t *testing.T) {
		client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/tags", r.URL.Path)
			_, _ = w.Write([]byte(`{"models":[{"name":"mistral:latest"},{"name":"llama3.1:8b","model":"llama3.1:8b"}]}`))
		})
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("model missing", func(t *testing.T) {
		client, _ := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"models":[{"name":"mistral:latest"}]}`))
		})
		err := client.Ping(context.Background())
		assert.ErrorIs(t, err, ErrModelNotFound)
	})

	t.Run("server down", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		cfg := validOracleConfig()
		cfg.Endpoint = url
		client, err := NewOllamaClient(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.ErrorContains(t, client.Ping(context.Background()), "unreachable")
	})
}

func TestModelMatches(t *testing.T) {
	assert.True(t, modelMatches("llama3", "llama3:latest"))
	assert.True(t, modelMatches("llama3:8b", "llama3:8b"))
	assert.False(t, modelMatches("llama3:8b", "llama3:latest"))
	assert.False(t, modelMatches("llama3", ""))
}
