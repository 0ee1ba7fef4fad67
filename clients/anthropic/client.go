package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"issuebroker/clients"
)

// AnthropicClient implements the clients.AnthropicClient interface
type AnthropicClient struct{}

// NewAnthropicClient creates a new Anthropic API client
func NewAnthropicClient() clients.AnthropicClient {
	return &AnthropicClient{}
}

// ValidateAPIKey checks that an API key is accepted by the Anthropic API
// before it is persisted as the deployment secret. Uses the models listing
// endpoint because it is cheap and side-effect free.
func (c *AnthropicClient) ValidateAPIKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if _, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)}); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}

	return nil
}
