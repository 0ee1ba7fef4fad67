package github

import (
	"context"

	"github.com/stretchr/testify/mock"

	"issuebroker/models"
)

// MockGitHubClient is a mock implementation of the clients.GitHubClient interface
type MockGitHubClient struct {
	mock.Mock
}

func (m *MockGitHubClient) CreateInstallationToken(
	ctx context.Context,
	appID string,
	privateKeyPEM []byte,
	installationID string,
) (*models.InstallationToken, error) {
	args := m.Called(ctx, appID, privateKeyPEM, installationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InstallationToken), args.Error(1)
}

func (m *MockGitHubClient) ListInstallationRepositories(
	ctx context.Context,
	appID string,
	privateKeyPEM []byte,
	installationID string,
) ([]models.Repository, error) {
	args := m.Called(ctx, appID, privateKeyPEM, installationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}
