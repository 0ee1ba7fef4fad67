package clients

import (
	"context"

	"issuebroker/models"
)

// GitHubClient talks to the GitHub API on behalf of a tenant's app. The
// private key is supplied per call because every tenant signs with its own
// key material.
type GitHubClient interface {
	// CreateInstallationToken exchanges a signed app assertion for a
	// short-lived installation access token.
	CreateInstallationToken(
		ctx context.Context,
		appID string,
		privateKeyPEM []byte,
		installationID string,
	) (*models.InstallationToken, error)

	// ListInstallationRepositories lists repositories accessible by an
	// installation.
	ListInstallationRepositories(
		ctx context.Context,
		appID string,
		privateKeyPEM []byte,
		installationID string,
	) ([]models.Repository, error)
}

// AgentClient invokes the external issue-solving agent.
type AgentClient interface {
	SolveIssue(ctx context.Context, req *models.AgentSolveRequest) (*models.AgentResponse, error)
	NotifyIssueEvent(ctx context.Context, req *models.AgentNotifyRequest) (*models.AgentResponse, error)
}

// AnthropicClient validates Anthropic API keys before they are persisted
// as the deployment secret.
type AnthropicClient interface {
	ValidateAPIKey(ctx context.Context, apiKey string) error
}
