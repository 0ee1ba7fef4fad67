package anthropic

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAnthropicClient is a mock implementation of the clients.AnthropicClient interface
type MockAnthropicClient struct {
	mock.Mock
}

func (m *MockAnthropicClient) ValidateAPIKey(ctx context.Context, apiKey string) error {
	args := m.Called(ctx, apiKey)
	return args.Error(0)
}
