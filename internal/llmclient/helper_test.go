// File: internal/llmclient/helper_test.go
package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
)

// MockLLMClient is a testify mock of schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func validOracleConfig() config.OracleConfig {
	return config.OracleConfig{
		Provider:    config.ProviderOllama,
		Model:       "llama3.1:8b",
		Endpoint:    "http://127.0.0.1:11434",
		GeminiModel: "gemini-2.5-flash",
		Timeout:     5 * time.Second,
		Temperature: 0.3,
		MaxTokens:   128,
	}
}

func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You are a QA agent.",
		UserPrompt:   "Pick an element.",
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	}
}
