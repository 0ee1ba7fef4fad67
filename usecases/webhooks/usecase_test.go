package webhooks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	agentclient "issuebroker/clients/agent"
	githubclient "issuebroker/clients/github"
	"issuebroker/models"
	"issuebroker/services/credentials"
	"issuebroker/services/dispatch"
	"issuebroker/services/tokens"
)

func newTestUseCase(
	mockCreds *credentials.MockCredentialsService,
	mockTokens *tokens.MockTokensService,
	mockAgent *agentclient.MockAgentClient,
	mockGitHub *githubclient.MockGitHubClient,
) *WebhooksUseCase {
	return NewWebhooksUseCase(
		mockCreds,
		mockTokens,
		dispatch.NewDispatchService(),
		mockAgent,
		mockGitHub,
		time.Second,
	)
}

func openedIssueEvent() *models.WebhookEvent {
	return &models.WebhookEvent{
		Action: "opened",
		Issue: &models.WebhookIssue{
			ID:     111,
			Number: 7,
			Title:  "Crash on startup",
			Body:   "It crashes",
			Labels: []models.WebhookLabel{{Name: "bug"}},
			User:   &models.WebhookAccount{Login: "octocat"},
		},
		Repository: &models.WebhookRepository{
			ID:       42,
			Name:     "api",
			FullName: "acme/api",
			HTMLURL:  "https://github.com/acme/api",
		},
	}
}

func TestProcessInstallationEvent(t *testing.T) {
	ctx := context.Background()
	appID := "12345"

	t.Run("created merges installation and repositories", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, &githubclient.MockGitHubClient{})

		event := &models.WebhookEvent{
			Action:       "created",
			Installation: &models.WebhookInstallation{ID: 987},
			Repositories: []models.WebhookRepository{
				{ID: 1, Name: "api", FullName: "acme/api"},
				{ID: 2, Name: "web", FullName: "acme/web"},
			},
		}
		mockCreds.On("UpdateInstallation", ctx, appID, "987", []models.Repository{
			{ID: 1, Name: "api", FullName: "acme/api"},
			{ID: 2, Name: "web", FullName: "acme/web"},
		}).Return(nil)

		err := useCase.ProcessInstallationEvent(ctx, appID, event)
		require.NoError(t, err)
		mockCreds.AssertExpectations(t)
	})

	t.Run("deleted clears installation", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, &githubclient.MockGitHubClient{})

		mockCreds.On("ClearInstallation", ctx, appID).Return(nil)

		err := useCase.ProcessInstallationEvent(ctx, appID, &models.WebhookEvent{Action: "deleted"})
		require.NoError(t, err)
		mockCreds.AssertExpectations(t)
	})

	t.Run("unknown action is ignored", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, &githubclient.MockGitHubClient{})

		err := useCase.ProcessInstallationEvent(ctx, appID, &models.WebhookEvent{Action: "suspend"})
		require.NoError(t, err)
		mockCreds.AssertNotCalled(t, "UpdateInstallation")
		mockCreds.AssertNotCalled(t, "ClearInstallation")
	})
}

func TestProcessInstallationRepositoriesEvent(t *testing.T) {
	ctx := context.Background()
	appID := "12345"

	mockCreds := &credentials.MockCredentialsService{}
	useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, &githubclient.MockGitHubClient{})

	event := &models.WebhookEvent{
		Action:              "added",
		RepositoriesAdded:   []models.WebhookRepository{{ID: 3, Name: "docs", FullName: "acme/docs"}},
		RepositoriesRemoved: []models.WebhookRepository{{ID: 1, Name: "api", FullName: "acme/api"}},
	}
	mockCreds.On("AddRepository", ctx, appID, models.Repository{ID: 3, Name: "docs", FullName: "acme/docs"}).Return(nil)
	mockCreds.On("RemoveRepository", ctx, appID, int64(1)).Return(nil)

	err := useCase.ProcessInstallationRepositoriesEvent(ctx, appID, event)
	require.NoError(t, err)
	mockCreds.AssertExpectations(t)
}

func TestProcessIssuesEvent(t *testing.T) {
	ctx := context.Background()
	appID := "12345"

	t.Run("opened dispatches full processing with credentials", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockTokens := &tokens.MockTokensService{}
		mockAgent := &agentclient.MockAgentClient{}
		useCase := newTestUseCase(mockCreds, mockTokens, mockAgent, &githubclient.MockGitHubClient{})

		token := &models.InstallationToken{Token: "ghs_live", ExpiresAt: time.Now().Add(time.Hour)}
		mockTokens.On("GetInstallationToken", ctx, appID).Return(mo.Some(token), nil)
		mockCreds.On("GetDecryptedDeploymentSecret", ctx).Return(mo.Some("sk-ant-key"), nil)

		expectedRequest := &models.AgentSolveRequest{
			IssueID:           111,
			IssueNumber:       7,
			IssueTitle:        "Crash on startup",
			IssueBody:         "It crashes",
			IssueLabels:       []string{"bug"},
			IssueAuthor:       "octocat",
			RepositoryURL:     "https://github.com/acme/api",
			RepositoryName:    "acme/api",
			InstallationToken: "ghs_live",
			AnthropicAPIKey:   "sk-ant-key",
		}
		mockAgent.On("SolveIssue", ctx, expectedRequest).
			Return(&models.AgentResponse{Success: true, Message: "patch opened"}, nil)

		result, err := useCase.ProcessIssuesEvent(ctx, appID, openedIssueEvent())
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 200, result.Status)
		assert.Equal(t, "solve-issue", result.Name)
		mockAgent.AssertExpectations(t)
	})

	t.Run("non-opened action sends lightweight notification", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockTokens := &tokens.MockTokensService{}
		mockAgent := &agentclient.MockAgentClient{}
		useCase := newTestUseCase(mockCreds, mockTokens, mockAgent, &githubclient.MockGitHubClient{})

		event := openedIssueEvent()
		event.Action = "labeled"
		mockAgent.On("NotifyIssueEvent", ctx, &models.AgentNotifyRequest{
			Action:         "labeled",
			IssueNumber:    7,
			IssueTitle:     "Crash on startup",
			RepositoryName: "acme/api",
		}).Return(&models.AgentResponse{Success: true}, nil)

		result, err := useCase.ProcessIssuesEvent(ctx, appID, event)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "notify-issue", result.Name)
		// No credentials are pulled for notifications
		mockTokens.AssertNotCalled(t, "GetInstallationToken")
		mockCreds.AssertNotCalled(t, "GetDecryptedDeploymentSecret")
	})

	t.Run("missing installation token fails the event", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockTokens := &tokens.MockTokensService{}
		mockAgent := &agentclient.MockAgentClient{}
		useCase := newTestUseCase(mockCreds, mockTokens, mockAgent, &githubclient.MockGitHubClient{})

		mockTokens.On("GetInstallationToken", ctx, appID).
			Return(mo.None[*models.InstallationToken](), nil)

		_, err := useCase.ProcessIssuesEvent(ctx, appID, openedIssueEvent())
		assert.Error(t, err)
		mockAgent.AssertNotCalled(t, "SolveIssue")
	})

	t.Run("missing deployment secret fails the event", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockTokens := &tokens.MockTokensService{}
		mockAgent := &agentclient.MockAgentClient{}
		useCase := newTestUseCase(mockCreds, mockTokens, mockAgent, &githubclient.MockGitHubClient{})

		token := &models.InstallationToken{Token: "ghs_live", ExpiresAt: time.Now().Add(time.Hour)}
		mockTokens.On("GetInstallationToken", ctx, appID).Return(mo.Some(token), nil)
		mockCreds.On("GetDecryptedDeploymentSecret", ctx).Return(mo.None[string](), nil)

		_, err := useCase.ProcessIssuesEvent(ctx, appID, openedIssueEvent())
		assert.Error(t, err)
		mockAgent.AssertNotCalled(t, "SolveIssue")
	})

	t.Run("agent failure is normalized not propagated", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockTokens := &tokens.MockTokensService{}
		mockAgent := &agentclient.MockAgentClient{}
		useCase := newTestUseCase(mockCreds, mockTokens, mockAgent, &githubclient.MockGitHubClient{})

		token := &models.InstallationToken{Token: "ghs_live", ExpiresAt: time.Now().Add(time.Hour)}
		mockTokens.On("GetInstallationToken", ctx, appID).Return(mo.Some(token), nil)
		mockCreds.On("GetDecryptedDeploymentSecret", ctx).Return(mo.Some("sk-ant-key"), nil)
		mockAgent.On("SolveIssue", ctx, mock.Anything).
			Return(nil, fmt.Errorf("connection refused"))

		result, err := useCase.ProcessIssuesEvent(ctx, appID, openedIssueEvent())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 500, result.Status)
		assert.Equal(t, "dispatch_failure", result.Error)
	})
}

func TestSyncInstallationRepositories(t *testing.T) {
	ctx := context.Background()
	appID := "12345"

	t.Run("lists and merges repositories", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}
		useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, mockGitHub)

		credential := &models.TenantCredential{AppID: appID, InstallationID: "987"}
		secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
		repos := []models.Repository{{ID: 1, FullName: "acme/api"}}

		mockCreds.On("GetTenantCredential", ctx, appID).Return(mo.Some(credential), nil)
		mockCreds.On("GetDecryptedSecrets", ctx, appID).Return(mo.Some(secrets), nil)
		mockGitHub.On("ListInstallationRepositories", ctx, appID, []byte("pem"), "987").Return(repos, nil)
		mockCreds.On("UpdateInstallation", ctx, appID, "987", repos).Return(nil)

		err := useCase.SyncInstallationRepositories(ctx, appID)
		require.NoError(t, err)
		mockCreds.AssertExpectations(t)
		mockGitHub.AssertExpectations(t)
	})

	t.Run("unconfigured tenant", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		useCase := newTestUseCase(mockCreds, &tokens.MockTokensService{}, &agentclient.MockAgentClient{}, &githubclient.MockGitHubClient{})

		mockCreds.On("GetTenantCredential", ctx, appID).
			Return(mo.None[*models.TenantCredential](), nil)

		err := useCase.SyncInstallationRepositories(ctx, appID)
		assert.Error(t, err)
	})
}
